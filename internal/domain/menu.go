package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// MainMenuSlug is the menu shown on a session-start signal.
const MainMenuSlug = "main_menu"

// TableRefPrefix may prefix a dataset name in an action payload.
const TableRefPrefix = "$table:"

type ActionKind string

const (
	ActionReply     ActionKind = "reply"
	ActionViewTable ActionKind = "view_table"
	ActionCalculate ActionKind = "calculate_from_table"
	ActionCustom    ActionKind = "custom"
)

type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationCount Aggregation = "count"
)

func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationSum, AggregationAvg, AggregationCount:
		return true
	}
	return false
}

// Action is one menu entry. Exactly the fields relevant to Kind are set;
// custom actions keep the raw item so it re-encodes unchanged.
type Action struct {
	Kind        ActionKind
	Label       string
	Text        string
	TableRef    string
	Column      string
	Aggregation Aggregation
	Raw         json.RawMessage
}

type actionWire struct {
	Label       string `json:"label"`
	Action      string `json:"action"`
	Payload     string `json:"payload"`
	Column      string `json:"column,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.Kind == ActionCustom && len(a.Raw) > 0 {
		return a.Raw, nil
	}
	w := actionWire{Label: a.Label, Action: string(a.Kind)}
	switch a.Kind {
	case ActionReply:
		w.Payload = a.Text
	case ActionViewTable, ActionCalculate:
		w.Payload = TableRefPrefix + a.TableRef
		w.Column = a.Column
		w.Aggregation = string(a.Aggregation)
	}
	return json.Marshal(w)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Action{Label: w.Label}
	switch ActionKind(w.Action) {
	case ActionReply:
		a.Kind = ActionReply
		a.Text = w.Payload
	case ActionViewTable, ActionCalculate:
		a.Kind = ActionKind(w.Action)
		a.TableRef = strings.TrimPrefix(strings.TrimSpace(w.Payload), TableRefPrefix)
		a.Column = w.Column
		a.Aggregation = Aggregation(strings.ToLower(w.Aggregation))
	default:
		a.Kind = ActionCustom
		a.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// Validate checks the fields required by the action kind.
func (a *Action) Validate() error {
	if strings.TrimSpace(a.Label) == "" {
		return errors.Mark(errors.New("item label is required"), ErrValidation)
	}
	if len(a.Label) > 256 {
		return errors.Mark(errors.New("item label exceeds 256 characters"), ErrValidation)
	}
	switch a.Kind {
	case ActionReply:
		if a.Text == "" {
			return errors.Mark(errors.Newf("item %q: reply text is required", a.Label), ErrValidation)
		}
	case ActionViewTable, ActionCalculate:
		if a.TableRef == "" {
			return errors.Mark(errors.Newf("item %q: table reference is required", a.Label), ErrValidation)
		}
		if a.Aggregation != "" && !a.Aggregation.IsValid() {
			return errors.Mark(errors.Newf("item %q: unknown aggregation %q", a.Label, a.Aggregation), ErrValidation)
		}
	}
	return nil
}

type Menu struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"-"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Items     []Action  `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config keys recognised by the dispatcher.
const (
	ConfigWelcomeMessage = "welcome_message"
	ConfigDefaultReply   = "default_reply"
	ConfigAISystemPrompt = "ai_system_prompt"
	ConfigQuotaNotice    = "quota_notice"
)

// BotConfig is a tenant's keyed configuration entries.
type BotConfig map[string]string

func (c BotConfig) Get(key, fallback string) string {
	if v, ok := c[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
