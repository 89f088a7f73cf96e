package classify

import (
	_ "embed"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"agency-tracker/pkg/model"
)

//go:embed templates.yaml
var defaultCatalogYAML []byte

// ServiceTemplate is the ordered task list generated for one unit of a service type.
type ServiceTemplate struct {
	Type  model.ServiceType `yaml:"type"`
	Label string            `yaml:"label"`
	Tasks []string          `yaml:"tasks"`
}

// Catalog maps service types to their templates.
type Catalog struct {
	order     []model.ServiceType
	templates map[model.ServiceType]ServiceTemplate
}

// ParseCatalog reads a YAML template catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Services []ServiceTemplate `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	c := &Catalog{templates: make(map[model.ServiceType]ServiceTemplate, len(doc.Services))}
	for _, s := range doc.Services {
		if s.Type == "" {
			return nil, fmt.Errorf("parse template catalog: service without type")
		}
		if _, dup := c.templates[s.Type]; dup {
			return nil, fmt.Errorf("parse template catalog: duplicate service type %s", s.Type)
		}
		if s.Label == "" {
			s.Label = string(s.Type)
		}
		c.order = append(c.order, s.Type)
		c.templates[s.Type] = s
	}
	return c, nil
}

var defaultCatalog = func() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}()

// DefaultCatalog returns the built-in service templates.
func DefaultCatalog() *Catalog { return defaultCatalog }

// Types lists known service types in catalog order.
func (c *Catalog) Types() []model.ServiceType {
	return append([]model.ServiceType(nil), c.order...)
}

// Template returns the template for typ.
func (c *Catalog) Template(typ model.ServiceType) (ServiceTemplate, bool) {
	t, ok := c.templates[typ]
	return t, ok
}

// Label returns the display label for typ, falling back to the raw type.
func (c *Catalog) Label(typ model.ServiceType) string {
	if t, ok := c.templates[typ]; ok {
		return t.Label
	}
	return string(typ)
}

// TaskTitle builds "[Label] base" or "[Label #n] base" when unit > 0.
func (c *Catalog) TaskTitle(base string, typ model.ServiceType, unit int) string {
	if unit > 0 {
		return fmt.Sprintf("[%s #%d] %s", c.Label(typ), unit, base)
	}
	return fmt.Sprintf("[%s] %s", c.Label(typ), base)
}

// ExpandServiceTemplates generates the tasks for a single service.
func (c *Catalog) ExpandServiceTemplates(svc model.Service, project model.Project, assignee string, now time.Time) []model.Task {
	return c.ExpandProjectTemplates([]model.Service{svc}, project, assignee, now)
}

// ExpandProjectTemplates generates tasks for every service on a project.
// Each service's template is repeated once per unit of quantity, and due
// dates are spread linearly across the whole batch from the project's start
// date to its due date. Unknown service types generate nothing.
func (c *Catalog) ExpandProjectTemplates(services []model.Service, project model.Project, assignee string, now time.Time) []model.Task {
	total := 0
	for _, s := range services {
		total += len(c.templates[s.Type].Tasks) * model.ClampQuantity(s.Quantity)
	}

	now = now.UTC()
	out := make([]model.Task, 0, total)
	cursor := 0
	for _, s := range services {
		tpl, ok := c.templates[s.Type]
		if !ok {
			continue
		}
		units := model.ClampQuantity(s.Quantity)
		for u := 1; u <= units; u++ {
			unit := 0
			if units > 1 {
				unit = u
			}
			for _, base := range tpl.Tasks {
				out = append(out, model.Task{
					ProjectID:      project.ID,
					ServiceID:      model.StringPtr(s.ID),
					Title:          c.TaskTitle(base, s.Type, unit),
					Status:         model.StatusTodo,
					Priority:       model.PriorityMedium,
					DueDate:        InterpolateDueDate(project.StartDate, project.DueDate, cursor, total),
					AssigneeUserID: assignee,
					LastUpdateAt:   now,
				})
				cursor++
			}
		}
	}
	return out
}

// ExpandServiceTemplates expands one service using the default catalog.
func ExpandServiceTemplates(svc model.Service, project model.Project, assignee string, now time.Time) []model.Task {
	return defaultCatalog.ExpandServiceTemplates(svc, project, assignee, now)
}

// InterpolateDueDate places task i of total on the start..due range.
// Without a due date there is nothing to interpolate; without a usable start
// every task gets the due date.
func InterpolateDueDate(start, due model.Date, i, total int) model.Date {
	if due.IsZero() {
		return ""
	}
	end, ok := due.Time()
	if !ok {
		return ""
	}
	begin, ok := start.Time()
	if !ok || !end.After(begin) {
		return due
	}
	frac := 1.0
	if total > 1 {
		frac = float64(i) / float64(total-1)
	}
	span := float64(end.Sub(begin).Milliseconds())
	ms := math.Round(float64(begin.UnixMilli()) + span*frac)
	return model.DateOf(time.UnixMilli(int64(ms)))
}
