package risk

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lkarthik76/ddnd/internal/models"
)

// Display colours
const (
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorGreen  = "green"
	ColorGray   = "gray"
)

// View is the presentation of a risk state on the watch face
type View struct {
	Label    string `json:"label"`
	Color    string `json:"color"`
	Updated  string `json:"updated,omitempty"`
	Refresh  string `json:"refresh"`
	Emphasis bool   `json:"emphasis"`
}

// Render maps a state to its view, formatting times in loc
func Render(s models.RiskState, loc *time.Location) View {
	v := View{
		Label:    cases.Title(language.English).String(s.Label),
		Color:    Color(s.Label),
		Refresh:  fmt.Sprintf("Refreshing in %ds", s.SecondsUntilNextFetch),
		Emphasis: s.Emphasis,
	}
	if s.LastUpdatedAt != nil {
		v.Updated = "Updated: " + s.LastUpdatedAt.In(loc).Format("3:04 PM")
	}
	return v
}

// Color returns the display colour for label
func Color(label string) string {
	switch strings.ToLower(label) {
	case models.RiskHigh:
		return ColorRed
	case models.RiskModerate:
		return ColorOrange
	case models.RiskNormal:
		return ColorGreen
	default:
		return ColorGray
	}
}
