package directory

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"wphunter/internal/analysis"
	"wphunter/internal/domain"
)

// listingResponse mirrors the query_plugins / query_themes payload. Only one
// of Plugins or Themes is populated depending on the namespace.
type listingResponse struct {
	Info struct {
		Page    int `json:"page"`
		Pages   int `json:"pages"`
		Results int `json:"results"`
	} `json:"info"`
	Plugins []wireRecord `json:"plugins"`
	Themes  []wireRecord `json:"themes"`
}

type wireRecord struct {
	Slug             string            `json:"slug"`
	Name             string            `json:"name"`
	Author           authorField       `json:"author"`
	ActiveInstalls   int               `json:"active_installs"`
	LastUpdated      string            `json:"last_updated"`
	Tags             tagsField         `json:"tags"`
	ShortDescription string            `json:"short_description"`
	Changelog        string            `json:"changelog"`
	Sections         map[string]string `json:"sections"`
	Tested           string            `json:"tested"`
	DownloadLink     string            `json:"download_link"`
}

// authorField tolerates the API's two shapes: a plain (often HTML) string
// for plugins, an object with display_name for themes.
type authorField string

func (a *authorField) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*a = authorField(strings.TrimSpace(analysis.StripHTML(asString)))
		return nil
	}

	var asObject struct {
		DisplayName string `json:"display_name"`
		UserNicename string `json:"user_nicename"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	name := asObject.DisplayName
	if name == "" {
		name = asObject.UserNicename
	}
	*a = authorField(strings.TrimSpace(name))
	return nil
}

// tagsField tolerates both a JSON array of strings and the slug->label
// object the plugins API actually returns.
type tagsField []string

func (t *tagsField) UnmarshalJSON(data []byte) error {
	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		*t = asList
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err != nil {
		// Some records carry tags:false; treat anything else odd as no tags.
		*t = nil
		return nil
	}
	values := make([]string, 0, len(asMap))
	for _, label := range asMap {
		values = append(values, label)
	}
	sort.Strings(values)
	*t = values
	return nil
}

// lastUpdatedLayouts covers the date shapes seen across the plugin and theme
// namespaces.
var lastUpdatedLayouts = []string{
	"2006-01-02 3:04pm MST",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseLastUpdated(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range lastUpdatedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func (w wireRecord) toDomain() domain.ListingRecord {
	changelog := w.Changelog
	if changelog == "" && w.Sections != nil {
		changelog = w.Sections["changelog"]
	}

	installs := w.ActiveInstalls
	if installs < 0 {
		installs = 0
	}

	return domain.ListingRecord{
		Slug:             w.Slug,
		Name:             strings.TrimSpace(analysis.StripHTML(w.Name)),
		Author:           string(w.Author),
		ActiveInstalls:   installs,
		LastUpdated:      parseLastUpdated(w.LastUpdated),
		Tags:             w.Tags,
		ShortDescription: w.ShortDescription,
		Changelog:        changelog,
		Tested:           w.Tested,
		DownloadURL:      w.DownloadLink,
	}
}
