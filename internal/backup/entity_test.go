package backup

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHasValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "absent", value: nil, want: false},
		{name: "unknown", value: StateUnknown, want: false},
		{name: "unavailable", value: StateUnavailable, want: false},
		{name: "None literal", value: "None", want: false},
		{name: "empty string", value: "", want: false},
		{name: "numeric string", value: "123", want: true},
		{name: "numeric zero", value: 0, want: true},
		{name: "float zero", value: 0.0, want: true},
		{name: "off", value: StateOff, want: true},
		{name: "lowercase none", value: "none", want: true},
		{name: "bool false", value: false, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HasValue(State{EntityID: "sensor.a", Value: tt.value}); got != tt.want {
				t.Errorf("HasValue(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNewEntity(t *testing.T) {
	t.Parallel()

	t.Run("first source known", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.set("sensor.a", "20", map[string]any{"unit_of_measurement": "°C"})

		e := mustEntity(t, Config{Name: "test", UniqueID: "test_id", Sources: []string{"sensor.a", "sensor.b"}, SkipNoValue: true}, host)

		want := NewState("sensor.a", "20", map[string]any{"unit_of_measurement": "°C"})
		if diff := cmp.Diff(want, e.State()); diff != "" {
			t.Errorf("initial state mismatch (-want +got):\n%s", diff)
		}
		if e.SelectedIndex() != 0 {
			t.Errorf("SelectedIndex() = %d, want 0", e.SelectedIndex())
		}
		if e.UniqueID() != "test_id" || e.Name() != "test" || !e.SkipNoValue() {
			t.Errorf("config not kept: name=%q unique_id=%q skip=%v", e.Name(), e.UniqueID(), e.SkipNoValue())
		}
	})

	t.Run("first source unknown to store", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.set("sensor.b", "5", nil)

		e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a", "sensor.b"}}, host)

		want := State{EntityID: "sensor.a", Value: StateUnavailable, Attributes: map[string]any{}}
		if diff := cmp.Diff(want, e.State()); diff != "" {
			t.Errorf("initial state mismatch (-want +got):\n%s", diff)
		}
		if e.Available() {
			t.Error("Available() = true, want false for synthetic state")
		}
	})

	t.Run("no sources", func(t *testing.T) {
		t.Parallel()

		_, err := NewEntity(Config{Name: "test"}, newFakeHost(), nil)
		if !errors.Is(err, ErrNoSources) {
			t.Errorf("NewEntity() error = %v, want ErrNoSources", err)
		}
	})
}

func TestEntity_Refresh_FirstUsableSource(t *testing.T) {
	t.Parallel()

	for i := 0; i < 4; i++ {
		t.Run(fmt.Sprintf("usable at index %d", i), func(t *testing.T) {
			t.Parallel()

			host := newFakeHost()
			sources := []string{"sensor.s0", "sensor.s1", "sensor.s2", "sensor.s3"}
			for j, id := range sources {
				switch {
				case j < i && j%2 == 0:
					// missing from the store
				case j < i:
					host.set(id, StateUnknown, nil)
				default:
					host.set(id, fmt.Sprintf("%d", j*10), map[string]any{"idx": j})
				}
			}

			logger, buf := captureLogger()
			e, err := NewEntity(Config{Name: "test", Sources: sources, SkipNoValue: true}, host, logger)
			if err != nil {
				t.Fatalf("NewEntity() error = %v", err)
			}
			buf.Reset()

			e.Refresh()

			want, _ := host.Get(sources[i])
			if diff := cmp.Diff(want, e.State()); diff != "" {
				t.Errorf("adopted state mismatch (-want +got):\n%s", diff)
			}
			if e.SelectedIndex() != i {
				t.Errorf("SelectedIndex() = %d, want %d", e.SelectedIndex(), i)
			}

			lines := logLines(buf)
			if len(lines) != i+1 {
				t.Fatalf("got %d log lines, want %d:\n%s", len(lines), i+1, buf.String())
			}
			for j := 0; j < i; j++ {
				if !strings.Contains(lines[j], "source="+sources[j]) {
					t.Errorf("line %d = %q, want skip diagnostic for %s", j, lines[j], sources[j])
				}
				wantMsg := "has no usable value"
				if j%2 == 0 {
					wantMsg = "not found"
				}
				if !strings.Contains(lines[j], wantMsg) {
					t.Errorf("line %d = %q, want %q", j, lines[j], wantMsg)
				}
			}
			if !strings.Contains(lines[i], "Source selected") {
				t.Errorf("last line = %q, want selection diagnostic", lines[i])
			}
		})
	}
}

func TestEntity_Refresh_MissingThenNumeric(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.set("sensor.b", "123", nil)

	e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a", "sensor.b"}, SkipNoValue: true}, host)
	e.Refresh()

	if e.Value() != "123" {
		t.Errorf("Value() = %v, want %q", e.Value(), "123")
	}
	if got := e.Attributes()[AttrSource]; got != "sensor.b" {
		t.Errorf("Attributes()[source] = %v, want sensor.b", got)
	}
}

func TestEntity_Refresh_NoSkip(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.set("sensor.a", StateUnavailable, nil)
	host.set("sensor.b", "42", nil)

	logger, buf := captureLogger()
	e, _ := NewEntity(Config{Name: "test", Sources: []string{"sensor.a", "sensor.b"}, SkipNoValue: false}, host, logger)
	buf.Reset()

	e.Refresh()

	if e.Value() != StateUnavailable || e.State().EntityID != "sensor.a" {
		t.Errorf("adopted %s=%v, want sensor.a=unavailable", e.State().EntityID, e.Value())
	}
	if strings.Contains(buf.String(), "no usable value") {
		t.Errorf("unexpected skip diagnostic with skip_no_value=false:\n%s", buf.String())
	}
	if e.Available() {
		t.Error("Available() = true, want false")
	}
}

func TestEntity_Refresh_FallsBackToFirstSource(t *testing.T) {
	t.Parallel()

	t.Run("single unusable source", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.set("sensor.a", "None", map[string]any{"icon": "mdi:help"})

		e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a"}, SkipNoValue: true}, host)
		e.Refresh()

		if e.Value() != "None" {
			t.Errorf("Value() = %v, want verbatim %q", e.Value(), "None")
		}
		if e.SelectedIndex() != -1 {
			t.Errorf("SelectedIndex() = %d, want -1", e.SelectedIndex())
		}
		if e.Icon() != "mdi:help" {
			t.Errorf("Icon() = %v, want mdi:help", e.Icon())
		}
	})

	t.Run("first missing and rest unusable", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.set("sensor.b", StateUnknown, nil)
		host.set("sensor.c", "", nil)

		e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a", "sensor.b", "sensor.c"}, SkipNoValue: true}, host)
		host.set("sensor.a", "1", nil)
		e.Refresh()
		delete(host.states, "sensor.a")
		e.Refresh()

		want := State{EntityID: "sensor.a", Value: StateUnavailable, Attributes: map[string]any{}}
		if diff := cmp.Diff(want, e.State()); diff != "" {
			t.Errorf("fallback state mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestEntity_Update_Idempotent(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.set("sensor.a", "1", map[string]any{"unit_of_measurement": "W"})

	e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a", "sensor.b"}, SkipNoValue: true}, host)

	if e.Update() {
		t.Error("first Update() reported a change for an identical state")
	}

	host.set("sensor.a", "1", map[string]any{"unit_of_measurement": "kW"})
	if !e.Update() {
		t.Error("Update() after attribute change = false, want true")
	}
	if e.Update() {
		t.Error("second Update() without changes = true, want false")
	}

	host.set("sensor.a", StateUnavailable, nil)
	host.set("sensor.b", "1", map[string]any{"unit_of_measurement": "kW"})
	if !e.Update() {
		t.Error("Update() after switching source = false, want true")
	}
}

func TestEntity_Projections(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.set("sensor.a", "on", map[string]any{
		AttrUnitOfMeasurement: "%",
		AttrIcon:              "mdi:water",
		AttrEntityPicture:     "/local/a.png",
		AttrDeviceClass:       "humidity",
		AttrAssumedState:      true,
		AttrAttribution:       "Data by A",
		AttrSupportedFeatures: 3,
		AttrSource:            "overwritten",
	})

	e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a"}}, host)

	if e.UnitOfMeasurement() != "%" || e.Icon() != "mdi:water" || e.EntityPicture() != "/local/a.png" {
		t.Errorf("lookups = %v %v %v", e.UnitOfMeasurement(), e.Icon(), e.EntityPicture())
	}
	if e.DeviceClass() != "humidity" || e.Attribution() != "Data by A" || e.SupportedFeatures() != 3 {
		t.Errorf("lookups = %v %v %v", e.DeviceClass(), e.Attribution(), e.SupportedFeatures())
	}
	if !e.AssumedState() {
		t.Error("AssumedState() = false, want true")
	}

	attrs := e.Attributes()
	if attrs[AttrSource] != "sensor.a" {
		t.Errorf("Attributes()[source] = %v, want sensor.a", attrs[AttrSource])
	}
	attrs["mutated"] = true
	if _, ok := e.State().Attributes["mutated"]; ok {
		t.Error("Attributes() returned the adopted map instead of a copy")
	}
}

func TestEntity_Projections_Defaults(t *testing.T) {
	t.Parallel()

	e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a"}}, newFakeHost())

	if e.AssumedState() {
		t.Error("AssumedState() = true, want false when absent")
	}
	for name, got := range map[string]any{
		"UnitOfMeasurement": e.UnitOfMeasurement(),
		"Icon":              e.Icon(),
		"EntityPicture":     e.EntityPicture(),
		"DeviceClass":       e.DeviceClass(),
		"Attribution":       e.Attribution(),
		"SupportedFeatures": e.SupportedFeatures(),
	} {
		if got != nil {
			t.Errorf("%s() = %v, want nil", name, got)
		}
	}
	if diff := cmp.Diff(map[string]any{AttrSource: "sensor.a"}, e.Attributes()); diff != "" {
		t.Errorf("Attributes() mismatch (-want +got):\n%s", diff)
	}
}

func TestEntity_Reconfigure(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.set("sensor.a", "1", nil)
	host.set("sensor.b", "2", nil)

	e := mustEntity(t, Config{Name: "test", Sources: []string{"sensor.a"}, SkipNoValue: true}, host)

	if err := e.Reconfigure(nil); !errors.Is(err, ErrNoSources) {
		t.Errorf("Reconfigure(nil) error = %v, want ErrNoSources", err)
	}

	sources := []string{"sensor.b", "sensor.a"}
	if err := e.Reconfigure(sources); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	sources[0] = "sensor.mutated"

	if diff := cmp.Diff([]string{"sensor.b", "sensor.a"}, e.Sources()); diff != "" {
		t.Errorf("Sources() mismatch (-want +got):\n%s", diff)
	}
	e.Sources()[0] = "sensor.mutated"
	if e.Sources()[0] != "sensor.b" {
		t.Error("Sources() exposed the internal slice")
	}

	e.Refresh()
	if e.Value() != "2" {
		t.Errorf("Value() after reconfigure = %v, want 2", e.Value())
	}
}

func TestState_Equal(t *testing.T) {
	t.Parallel()

	base := NewState("sensor.a", "1", map[string]any{"k": []any{1, "x"}})

	tests := []struct {
		name  string
		other State
		want  bool
	}{
		{name: "identical", other: NewState("sensor.a", "1", map[string]any{"k": []any{1, "x"}}), want: true},
		{name: "other source", other: NewState("sensor.b", "1", map[string]any{"k": []any{1, "x"}}), want: false},
		{name: "other value", other: NewState("sensor.a", "2", map[string]any{"k": []any{1, "x"}}), want: false},
		{name: "other attrs", other: NewState("sensor.a", "1", map[string]any{"k": []any{2}}), want: false},
	}
	for _, tt := range tests {
		if got := base.Equal(tt.other); got != tt.want {
			t.Errorf("%s: Equal() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if !(State{EntityID: "x", Value: "1"}).Equal(State{EntityID: "x", Value: "1", Attributes: map[string]any{}}) {
		t.Error("nil and empty attributes should compare equal")
	}
}

func TestState_ValueString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value any
		want  string
	}{
		{value: nil, want: StateUnknown},
		{value: "on", want: "on"},
		{value: 20, want: "20"},
		{value: 21.5, want: "21.5"},
	}
	for _, tt := range tests {
		if got := (State{Value: tt.value}).ValueString(); got != tt.want {
			t.Errorf("ValueString(%#v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "test", want: "test"},
		{in: "Outdoor Temperature", want: "outdoor_temperature"},
		{in: "  Front -- Door!  ", want: "front_door"},
		{in: "Küche 2", want: "küche_2"},
		{in: "!!!", want: "unnamed"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := EntityID(PlatformWeather, "Home Weather"); got != "weather.home_weather" {
		t.Errorf("EntityID() = %q, want weather.home_weather", got)
	}
}
