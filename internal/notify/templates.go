package notify

import (
	"fmt"
	"log"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// MessageContext carries the fields message templates may reference.
type MessageContext struct {
	AlertType   string
	Severity    string
	UnitName    string
	SiteName    string
	Message     string
	Action      string // initial, escalation, reminder, resolved
	TriggeredAt time.Time
	Resolution  string
}

// messageTemplate is one alert type's raw template strings.
type messageTemplate struct {
	EmailSubject string `yaml:"email_subject"`
	EmailBody    string `yaml:"email_body"`
	SMSText      string `yaml:"sms_text"`
}

// templateFile is the on-disk YAML layout.
type templateFile struct {
	Default   messageTemplate            `yaml:"default"`
	Templates map[string]messageTemplate `yaml:"templates"`
}

// TemplateStore renders notification messages from a YAML template file,
// falling back to built-in templates for alert types the file does not
// cover. Safe for concurrent reads after Load.
type TemplateStore struct {
	defaults  messageTemplate
	templates map[string]messageTemplate
}

const (
	builtinEmailSubject = "[{{.Severity}}] {{.AlertType}} alert for {{.UnitName}}"
	builtinEmailBody    = "Alert: {{.AlertType}}\nSeverity: {{.Severity}}\nUnit: {{.UnitName}}\nTriggered: {{.TriggeredAt.Format \"2006-01-02 15:04:05 MST\"}}\n\n{{.Message}}"
	builtinSMSText      = "{{.Severity}} {{.AlertType}}: {{.UnitName}} — {{.Message}}"

	builtinResolvedSubject = "[resolved] {{.AlertType}} alert for {{.UnitName}}"
	builtinResolvedBody    = "The {{.AlertType}} alert for {{.UnitName}} has been resolved.\n\nResolution: {{.Resolution}}"
	builtinResolvedSMS     = "Resolved {{.AlertType}}: {{.UnitName}} — {{.Resolution}}"
)

// NewTemplateStore returns a store with only the built-in templates.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		defaults: messageTemplate{
			EmailSubject: builtinEmailSubject,
			EmailBody:    builtinEmailBody,
			SMSText:      builtinSMSText,
		},
		templates: make(map[string]messageTemplate),
	}
}

// LoadTemplateStore reads the YAML template file at path. A missing file
// is not an error; the built-ins apply.
func LoadTemplateStore(path string) (*TemplateStore, error) {
	store := NewTemplateStore()
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("TemplateStore: no template file at %s, using built-in templates", path)
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	if file.Default.EmailSubject != "" {
		store.defaults.EmailSubject = file.Default.EmailSubject
	}
	if file.Default.EmailBody != "" {
		store.defaults.EmailBody = file.Default.EmailBody
	}
	if file.Default.SMSText != "" {
		store.defaults.SMSText = file.Default.SMSText
	}
	for name, tmpl := range file.Templates {
		store.templates[name] = tmpl
	}

	log.Printf("TemplateStore: loaded %d alert type templates from %s", len(store.templates), path)
	return store, nil
}

// RenderEmail renders the subject and body for an email notification.
func (s *TemplateStore) RenderEmail(ctx MessageContext) (subject, body string, err error) {
	tmpl := s.lookup(ctx)

	subject, err = render("email_subject", tmpl.EmailSubject, ctx)
	if err != nil {
		return "", "", err
	}
	body, err = render("email_body", tmpl.EmailBody, ctx)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// RenderSMS renders the text for an SMS notification.
func (s *TemplateStore) RenderSMS(ctx MessageContext) (string, error) {
	return render("sms_text", s.lookup(ctx).SMSText, ctx)
}

// lookup picks the template for the context's alert type and action,
// filling any blank field from the defaults.
func (s *TemplateStore) lookup(ctx MessageContext) messageTemplate {
	if ctx.Action == "resolved" {
		// Resolved notices use the resolved built-ins unless the file
		// defines a "<type>:resolved" entry.
		if override, ok := s.templates[ctx.AlertType+":resolved"]; ok {
			return fillDefaults(override, s.resolvedDefaults())
		}
		return s.resolvedDefaults()
	}

	tmpl, ok := s.templates[ctx.AlertType]
	if !ok {
		return s.defaults
	}
	return fillDefaults(tmpl, s.defaults)
}

func (s *TemplateStore) resolvedDefaults() messageTemplate {
	return messageTemplate{
		EmailSubject: builtinResolvedSubject,
		EmailBody:    builtinResolvedBody,
		SMSText:      builtinResolvedSMS,
	}
}

// fillDefaults substitutes blank fields with the fallback template.
func fillDefaults(tmpl, fallback messageTemplate) messageTemplate {
	if tmpl.EmailSubject == "" {
		tmpl.EmailSubject = fallback.EmailSubject
	}
	if tmpl.EmailBody == "" {
		tmpl.EmailBody = fallback.EmailBody
	}
	if tmpl.SMSText == "" {
		tmpl.SMSText = fallback.SMSText
	}
	return tmpl
}

// render executes one template string against the context.
func render(name, text string, ctx MessageContext) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid %s template: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return sb.String(), nil
}
