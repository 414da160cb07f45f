package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawProposalPayload is a stored proposal as it arrives from persistence:
// flat keys, nested section objects, or both, with values in any of the
// corrupted shapes ExtractScalar understands. It is decoded once at the
// boundary and only Reconcile reads it.
type RawProposalPayload struct {
	Flat         map[string]any
	Nested       map[string]map[string]any
	Members      any
	Comments     []Comment
	PlanSections []PlanSection
	Agent        any
	Supervisor   any
	Client       any
}

// Comment is one note left on a proposal.
type Comment struct {
	Modifier  string `json:"modifier"`
	Comment   string `json:"comment"`
	Timestamp string `json:"timestamp"`
}

// PlanSection is one block of system-proposed plans, usually per member or
// for the whole family.
type PlanSection struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Plans []string `json:"plans"`
}

var (
	planSectionKeys = []string{"proposed_plans", "plan_sections", "initial_plans", "system_plans"}
	agentPlanKeys   = []string{"plans_chosen", "selected_plans", "agent_selected_plans"}
	supervisorKeys  = []string{"supervisor_selected_plans", "supervisor_plans", "supervisor_approved_plans"}
	clientPlanKeys  = []string{"Client_Agreed_Plans", "client_agreed_plans", "client_plans"}
)

// ParsePayload decodes a stored proposal document.
func ParsePayload(data []byte) (RawProposalPayload, error) {
	var payload RawProposalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return RawProposalPayload{}, err
	}
	return payload, nil
}

// UnmarshalJSON sorts a proposal document into its flat, nested and
// selection parts. Object key order of the plan sections is preserved.
func (p *RawProposalPayload) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("decode proposal payload: %w", err)
	}

	p.Flat = make(map[string]any, len(top))
	p.Nested = make(map[string]map[string]any)

	consumed := map[string]struct{}{}
	for _, section := range sections {
		for _, alias := range sectionAliases(section.Key) {
			raw, ok := top[alias]
			if !ok {
				continue
			}
			consumed[alias] = struct{}{}
			if nested := asObject(decodeAny(raw)); len(nested) > 0 {
				p.Nested[section.Key] = nested
				break
			}
		}
	}

	if raw, ok := top["members"]; ok {
		p.Members = decodeAny(raw)
	}
	if raw, ok := top["comments_noted"]; ok {
		p.Comments = decodeComments(raw)
	}
	for _, key := range planSectionKeys {
		if raw, ok := top[key]; ok {
			consumed[key] = struct{}{}
			if parsed, err := decodePlanSections(raw); err == nil && len(parsed) > 0 && p.PlanSections == nil {
				p.PlanSections = parsed
			}
		}
	}
	p.Agent = firstPresent(top, agentPlanKeys, consumed)
	p.Supervisor = firstPresent(top, supervisorKeys, consumed)
	p.Client = firstPresent(top, clientPlanKeys, consumed)

	for key, raw := range top {
		if _, ok := consumed[key]; ok {
			continue
		}
		p.Flat[key] = decodeAny(raw)
	}
	return nil
}

func firstPresent(top map[string]json.RawMessage, keys []string, consumed map[string]struct{}) any {
	var found any
	for _, key := range keys {
		raw, ok := top[key]
		if !ok {
			continue
		}
		consumed[key] = struct{}{}
		if found == nil {
			if value := decodeAny(raw); value != nil {
				found = value
			}
		}
	}
	return found
}

func sectionAliases(key string) []string {
	return []string{key, camelToSnake(key), camelToKebab(key)}
}

func decodeAny(raw json.RawMessage) any {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func decodeComments(raw json.RawMessage) []Comment {
	value := decodeAny(raw)
	if s, ok := value.(string); ok && strings.HasPrefix(strings.TrimSpace(s), "[") {
		raw = json.RawMessage(s)
	}
	var comments []Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil
	}
	return comments
}

// decodePlanSections reads {"key": {"name": ..., "plans": [...]}} keeping the
// order the keys appear in.
func decodePlanSections(raw json.RawMessage) ([]PlanSection, error) {
	if s, ok := decodeAny(raw).(string); ok {
		raw = json.RawMessage(s)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("plan sections: expected object")
	}

	var out []PlanSection
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("plan section %s: %w", key, err)
		}
		section := PlanSection{Key: key}
		switch v := decodeAny(body).(type) {
		case map[string]any:
			section.Name = strings.TrimSpace(stringify(v["name"]))
			section.Plans = stringList(v["plans"])
		default:
			section.Plans = stringList(v)
		}
		out = append(out, section)
	}
	return out, nil
}
