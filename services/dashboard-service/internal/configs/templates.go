package configs

import (
	"strings"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/pipeline"
)

type template struct {
	tabSpecs   [][3]string // id, label, component types (comma separated)
	stageNames []string
	colors     map[string]string
}

func (t template) tabs() []Tab {
	out := make([]Tab, 0, len(t.tabSpecs))
	for _, spec := range t.tabSpecs {
		tab := Tab{ID: spec[0], Label: spec[1], Components: []Component{}}
		for _, typ := range strings.Split(spec[2], ",") {
			tab.Components = append(tab.Components, Component{ID: spec[0] + "-" + typ, Type: typ})
		}
		out = append(out, tab)
	}
	return out
}

func (t template) stages() []pipeline.Stage {
	var stages []pipeline.Stage
	for _, name := range t.stageNames {
		stages, _, _ = pipeline.Add(stages, name, "")
	}
	if stages == nil {
		stages = []pipeline.Stage{}
	}
	return stages
}

var templates = map[string]template{
	"salon": {
		tabSpecs: [][3]string{
			{"home", "Home", "stats,upcoming_appointments"},
			{"calendar", "Calendar", "calendar"},
			{"clients", "Clients", "client_table"},
			{"team", "Team", "team_list"},
			{"reviews", "Reviews", "review_feed"},
		},
		stageNames: []string{"New", "Booked", "Regular", "Lapsed"},
		colors:     map[string]string{"primary": "#db2777", "background": "#fff7fb", "text": "#1f2937"},
	},
	"contractor": {
		tabSpecs: [][3]string{
			{"home", "Home", "stats,pipeline_board"},
			{"jobs", "Jobs", "pipeline_board,record_table"},
			{"invoices", "Invoices", "invoice_table"},
			{"calendar", "Calendar", "calendar"},
		},
		stageNames: []string{"Lead", "Quoted", "Scheduled", "In Progress", "Completed"},
		colors:     map[string]string{"primary": "#ea580c", "background": "#ffffff", "text": "#111827"},
	},
	"restaurant": {
		tabSpecs: [][3]string{
			{"home", "Home", "stats,order_queue"},
			{"orders", "Orders", "order_queue"},
			{"menu", "Menu", "menu_editor"},
			{"social", "Social", "social_composer,review_feed"},
		},
		stageNames: []string{"New", "Catering Lead", "Confirmed"},
		colors:     map[string]string{"primary": "#16a34a", "background": "#ffffff", "text": "#111827"},
	},
	"generic": {
		tabSpecs: [][3]string{
			{"home", "Home", "stats"},
			{"clients", "Clients", "client_table"},
			{"pipeline", "Pipeline", "pipeline_board"},
			{"calendar", "Calendar", "calendar"},
		},
		stageNames: []string{"Lead", "Contacted", "Won", "Lost"},
	},
}

// Onboard builds a fresh config from the industry template. Unknown
// industries get the generic layout.
func Onboard(userID, businessName, industry string, colors map[string]string) BusinessConfig {
	industry = strings.ToLower(strings.TrimSpace(industry))
	t, ok := templates[industry]
	if !ok {
		t = templates["generic"]
	}
	cfg := Default(userID)
	cfg.BusinessName = businessName
	cfg.Industry = industry
	if cfg.Industry == "" {
		cfg.Industry = "generic"
	}
	cfg.Tabs = t.tabs()
	cfg.PipelineStages = t.stages()
	for k, v := range t.colors {
		cfg.Colors[k] = v
	}
	for k, v := range colors {
		cfg.Colors[k] = v
	}
	return cfg
}
