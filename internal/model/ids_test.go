package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdered_Keyed(t *testing.T) {
	got, err := Ordered(translationFields, Keyed{"nid": 3, "lang": "de"})
	require.NoError(t, err)
	assert.Equal(t, []any{"de", 3}, got)
}

func TestOrdered_Positional(t *testing.T) {
	got, err := Ordered(translationFields, Positional{"de", 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"de", 3}, got)
}

func TestOrdered_NoFields(t *testing.T) {
	got, err := Ordered(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_KeyedPartial(t *testing.T) {
	bound, extra := Match(translationFields, Keyed{"nid": 3})
	require.Len(t, bound, 1)
	assert.Empty(t, extra)
	assert.Equal(t, 1, bound[0].Index)
	assert.Equal(t, "nid", bound[0].Field.Name)
	assert.Equal(t, 3, bound[0].Value)
}

func TestMatch_KeyedNilIsLeftOver(t *testing.T) {
	bound, extra := Match(translationFields, Keyed{"lang": nil, "nid": 3})
	require.Len(t, bound, 1)
	assert.Equal(t, "nid", bound[0].Field.Name)
	assert.Equal(t, []string{"lang"}, extra, "a nil value binds nothing and is reported")
}

func TestMatch_KeyedUnknown(t *testing.T) {
	_, extra := Match(translationFields, Keyed{"nid": 3, "zeta": 1, "alpha": 2})
	assert.Equal(t, []string{"alpha", "zeta"}, extra, "unknown keys are reported sorted")
}

func TestMatch_PositionalBindsLeadingFields(t *testing.T) {
	bound, extra := Match(translationFields, Positional{"en"})
	require.Len(t, bound, 1)
	assert.Empty(t, extra)
	assert.Equal(t, "lang", bound[0].Field.Name)
}

func TestMatch_PositionalSurplus(t *testing.T) {
	bound, extra := Match(nodeFields, Positional{1, 2, 3})
	assert.Len(t, bound, 1)
	assert.Equal(t, []string{"#2", "#3"}, extra)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(Keyed{}))
	assert.True(t, IsEmpty(Positional{}))
	assert.False(t, IsEmpty(Positional{1}))
}

func TestToKeyed(t *testing.T) {
	assert.Equal(t, Keyed{"lang": "en", "nid": int64(4)}, ToKeyed(translationFields, []any{"en", int64(4)}))
	assert.Equal(t, Keyed{"lang": "en"}, ToKeyed(translationFields, []any{"en"}))
}

func TestFieldSpec_Coerce(t *testing.T) {
	intField := FieldSpec{Name: "nid", Type: TypeInteger}
	assert.Equal(t, int64(12), intField.Coerce([]byte("12")))
	assert.Equal(t, int64(12), intField.Coerce("12"))
	assert.Equal(t, int64(12), intField.Coerce(int64(12)))
	assert.Equal(t, "abc", intField.Coerce([]byte("abc")), "non-numeric text is left alone")
	assert.Nil(t, intField.Coerce(nil))

	strField := FieldSpec{Name: "lang", Type: TypeString}
	assert.Equal(t, "en", strField.Coerce([]byte("en")))

	floatField := FieldSpec{Name: "w", Type: TypeFloat}
	assert.Equal(t, 1.25, floatField.Coerce("1.25"))

	binField := FieldSpec{Name: "b", Type: TypeBinary}
	raw := []byte{0x00, 0x01}
	got := binField.Coerce(raw)
	assert.Equal(t, raw, got)
	raw[0] = 0xff
	assert.Equal(t, byte(0x00), got.([]byte)[0], "binary values are copied")
}

func TestStrval(t *testing.T) {
	assert.Equal(t, "", Strval(nil))
	assert.Equal(t, "1", Strval(true))
	assert.Equal(t, "", Strval(false))
	assert.Equal(t, "-3", Strval(int8(-3)))
	assert.Equal(t, "18446744073709551615", Strval(^uint64(0)))
	assert.Equal(t, "0.1", Strval(0.1))
	assert.Equal(t, "1.5", Strval(float32(1.5)))
}

func TestIdentity_Validate(t *testing.T) {
	valid := Identity{
		ID:             "d7_node:article",
		SourceIDs:      translationFields,
		DestinationIDs: []FieldSpec{{Name: "nid", Type: TypeInteger}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Identity)
		want   string
	}{
		{"empty id", func(i *Identity) { i.ID = " " }, "migration id is required"},
		{"no source", func(i *Identity) { i.SourceIDs = nil }, "at least one source id field"},
		{"no destination", func(i *Identity) { i.DestinationIDs = nil }, "at least one destination id field"},
		{"duplicate field", func(i *Identity) {
			i.SourceIDs = []FieldSpec{{Name: "a", Type: TypeInteger}, {Name: "a", Type: TypeInteger}}
		}, `duplicate source id field "a"`},
		{"unknown type", func(i *Identity) {
			i.DestinationIDs = []FieldSpec{{Name: "x", Type: "uuid"}}
		}, `unknown type "uuid"`},
		{"unnamed field", func(i *Identity) {
			i.SourceIDs = []FieldSpec{{Type: TypeInteger}}
		}, "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := valid
			tt.mutate(&id)
			err := id.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMessageLevel(t *testing.T) {
	for in, want := range map[string]MessageLevel{
		"error": LevelError, "WARNING": LevelWarning, "3": LevelNotice, "info": LevelInformational,
	} {
		got, err := ParseMessageLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMessageLevel("loud")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("needs-update")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsUpdate, got)
	assert.Equal(t, "needs_update", got.String())

	_, err = ParseStatus("done")
	assert.Error(t, err)
}

func TestEnumValuesAreStable(t *testing.T) {
	assert.Equal(t, 0, int(StatusImported))
	assert.Equal(t, 1, int(StatusNeedsUpdate))
	assert.Equal(t, 2, int(StatusIgnored))
	assert.Equal(t, 3, int(StatusFailed))
	assert.Equal(t, 0, int(RollbackDelete))
	assert.Equal(t, 1, int(RollbackPreserve))
	assert.Equal(t, 1, int(LevelError))
	assert.Equal(t, 4, int(LevelInformational))
}

func TestFieldSpec_Settings(t *testing.T) {
	f := FieldSpec{Name: "s", Type: TypeString, Settings: map[string]any{"max_length": 32, "unsigned": "true", "size": "big"}}
	assert.Equal(t, 32, f.MaxLength())
	assert.True(t, f.BoolSetting("unsigned"))
	assert.Equal(t, "big", f.StringSetting("size", "normal"))
	assert.Equal(t, "normal", FieldSpec{}.StringSetting("size", "normal"))
	assert.Equal(t, DefaultStringLength, FieldSpec{}.MaxLength())
}
