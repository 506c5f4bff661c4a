package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SemanticType names the logical type of an identifier field.
// The set is closed; dialects map each one to a native column type.
type SemanticType string

const (
	TypeInteger    SemanticType = "integer"
	TypeString     SemanticType = "string"
	TypeStringLong SemanticType = "string_long"
	TypeFloat      SemanticType = "float"
	TypeDecimal    SemanticType = "decimal"
	TypeBoolean    SemanticType = "boolean"
	TypeBinary     SemanticType = "binary"
	TypeTimestamp  SemanticType = "timestamp"
)

// ValidSemanticTypes defines allowed identifier field types.
var ValidSemanticTypes = map[SemanticType]bool{
	TypeInteger:    true,
	TypeString:     true,
	TypeStringLong: true,
	TypeFloat:      true,
	TypeDecimal:    true,
	TypeBoolean:    true,
	TypeBinary:     true,
	TypeTimestamp:  true,
}

// DefaultStringLength is the VARCHAR length used when a string field
// declares no max_length.
const DefaultStringLength = 255

// FieldSpec declares one identifier field of a migration source or
// destination.
type FieldSpec struct {
	Name     string         `json:"name" yaml:"name"`
	Type     SemanticType   `json:"type" yaml:"type"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// IntSetting returns an integer setting, or def when it is absent or not numeric.
func (f FieldSpec) IntSetting(name string, def int) int {
	v, ok := f.Settings[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// BoolSetting returns a boolean setting, or false when it is absent.
func (f FieldSpec) BoolSetting(name string) bool {
	v, ok := f.Settings[name]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// StringSetting returns a string setting, or def when it is absent.
func (f FieldSpec) StringSetting(name, def string) string {
	if s, ok := f.Settings[name].(string); ok && s != "" {
		return s
	}
	return def
}

// MaxLength returns the declared max_length for string fields.
func (f FieldSpec) MaxLength() int {
	return f.IntSetting("max_length", DefaultStringLength)
}

// Identity is the immutable descriptor of a single migration.
type Identity struct {
	ID                string      `json:"id" yaml:"id"`
	SourceIDs         []FieldSpec `json:"source_ids" yaml:"source_ids"`
	DestinationIDs    []FieldSpec `json:"destination_ids" yaml:"destination_ids"`
	TrackLastImported bool        `json:"track_last_imported" yaml:"track_last_imported"`
}

// BaseID returns the family name of a derivative migration: the part of the
// id before the first DerivativeSeparator. Non-derivative ids return "".
func (i Identity) BaseID() string {
	base, _, found := strings.Cut(i.ID, DerivativeSeparator)
	if !found {
		return ""
	}
	return base
}

// MapTableName returns the map table name for this migration.
func (i Identity) MapTableName(prefix string) string {
	return MapTableName(i.ID, prefix)
}

// MessageTableName returns the message table name for this migration.
func (i Identity) MessageTableName(prefix string) string {
	return MessageTableName(i.ID, prefix)
}

// Validate checks structural requirements of the identity.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("migration id is required")
	}
	if len(i.SourceIDs) == 0 {
		return fmt.Errorf("migration %s: at least one source id field is required", i.ID)
	}
	if len(i.DestinationIDs) == 0 {
		return fmt.Errorf("migration %s: at least one destination id field is required", i.ID)
	}
	if err := validateFields("source", i.SourceIDs); err != nil {
		return fmt.Errorf("migration %s: %w", i.ID, err)
	}
	if err := validateFields("destination", i.DestinationIDs); err != nil {
		return fmt.Errorf("migration %s: %w", i.ID, err)
	}
	return nil
}

func validateFields(kind string, fields []FieldSpec) error {
	seen := make(map[string]bool, len(fields))
	for idx, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%s id field %d has no name", kind, idx+1)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate %s id field %q", kind, f.Name)
		}
		seen[f.Name] = true
		if !ValidSemanticTypes[f.Type] {
			return fmt.Errorf("%s id field %q has unknown type %q", kind, f.Name, f.Type)
		}
	}
	return nil
}

// Status is the processing status of a source row.
type Status int

const (
	StatusImported    Status = 0
	StatusNeedsUpdate Status = 1
	StatusIgnored     Status = 2
	StatusFailed      Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusImported:
		return "imported"
	case StatusNeedsUpdate:
		return "needs_update"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus parses the String form of a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "imported":
		return StatusImported, nil
	case "needs_update", "needs-update":
		return StatusNeedsUpdate, nil
	case "ignored":
		return StatusIgnored, nil
	case "failed":
		return StatusFailed, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// RollbackAction says what a rollback does with the destination record.
type RollbackAction int

const (
	RollbackDelete   RollbackAction = 0
	RollbackPreserve RollbackAction = 1
)

func (a RollbackAction) String() string {
	switch a {
	case RollbackDelete:
		return "delete"
	case RollbackPreserve:
		return "preserve"
	default:
		return fmt.Sprintf("rollback(%d)", int(a))
	}
}

// MessageLevel ranks diagnostic messages; lower is more severe.
type MessageLevel int

const (
	LevelError         MessageLevel = 1
	LevelWarning       MessageLevel = 2
	LevelNotice        MessageLevel = 3
	LevelInformational MessageLevel = 4
)

func (l MessageLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNotice:
		return "notice"
	case LevelInformational:
		return "status"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseMessageLevel parses a level name or its numeric form.
func ParseMessageLevel(s string) (MessageLevel, error) {
	switch strings.ToLower(s) {
	case "error", "1":
		return LevelError, nil
	case "warning", "2":
		return LevelWarning, nil
	case "notice", "3":
		return LevelNotice, nil
	case "status", "info", "informational", "4":
		return LevelInformational, nil
	}
	return 0, fmt.Errorf("unknown message level %q", s)
}

// MapRow is one persisted source → destination correspondence.
// SourceIDs and DestinationIDs are in declared field order; a nil entry in
// DestinationIDs is a NULL column.
type MapRow struct {
	SourceIDsHash  string         `json:"source_ids_hash"`
	SourceIDs      []any          `json:"source_ids"`
	DestinationIDs []any          `json:"destination_ids"`
	Status         Status         `json:"source_row_status"`
	RollbackAction RollbackAction `json:"rollback_action"`
	LastImported   int64          `json:"last_imported"`
	Hash           string         `json:"hash,omitempty"`
}

// MessageRow is a diagnostic message attached to a source id tuple.
// SourceIDs and DestinationIDs come from the matching map row and are all nil
// when no map row exists for the message.
type MessageRow struct {
	MsgID          int64        `json:"msgid"`
	SourceIDsHash  string       `json:"source_ids_hash"`
	Level          MessageLevel `json:"level"`
	Message        string       `json:"message"`
	SourceIDs      []any        `json:"source_ids"`
	DestinationIDs []any        `json:"destination_ids"`
}
