// Package command turns validated, authorized commands into state store
// writes. The dispatcher is the sole writer to the store: a command is
// validated in full before the first write, and every command yields exactly
// one Result no matter how many patches it expands into.
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/state"
)

// MaxPathDepth bounds patch path depth to keep the tree from nesting
// without limit.
const MaxPathDepth = 10

var (
	ErrInvalidPath       = errors.New("invalid path")
	ErrPathTooDeep       = errors.New("path exceeds maximum depth")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidTarget     = errors.New("invalid action target")
	ErrInvalidPayload    = errors.New("invalid action payload")
)

// StatePatch is a direct path write.
type StatePatch struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Action is a named operation the dispatcher expands into one or more
// patches.
type Action struct {
	Type    string         `json:"actionType"`
	Target  string         `json:"target,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ActionTypes is the fixed allow-list of action names.
var ActionTypes = []string{"toggle", "set", "trigger", "update"}

// AllLightsTarget is the toggle sentinel addressing every power-capable
// device at once.
const AllLightsTarget = "all_lights"

// Result is the atomic outcome of applying one command.
type Result struct {
	Success   bool           `json:"success"`
	Changes   []state.Change `json:"changes"`
	Timestamp time.Time      `json:"timestamp"`
}

// Dispatcher applies commands to its store. Commands are serialized so a
// multi-patch action is never interleaved with another command's writes.
type Dispatcher struct {
	mu     sync.Mutex
	store  *state.Store
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher writing to the given store.
func NewDispatcher(store *state.Store, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, logger: logger}
}

// patchOp is one planned write. Actions are expanded into patchOps first and
// written only after the whole command validated.
type patchOp struct {
	path  string
	value any
}

// ApplyPatch validates and applies a direct path write. The patch value is
// accepted as-is at any valid path; there is no schema enforcement.
func (d *Dispatcher) ApplyPatch(patch StatePatch, origin string) (Result, error) {
	if err := validatePath(patch.Path); err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.apply([]patchOp{{path: patch.Path, value: patch.Value}}, origin)
}

// ExecuteAction validates the action against the allow-list, expands it into
// patches and applies them as one command.
func (d *Dispatcher) ExecuteAction(action Action, origin string) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		ops []patchOp
		err error
	)
	switch action.Type {
	case "toggle":
		ops, err = d.planToggle(action)
	case "set":
		ops, err = d.planSet(action)
	case "trigger":
		ops, err = d.planTrigger(action)
	case "update":
		ops, err = d.planUpdate(action)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}
	if err != nil {
		return Result{}, err
	}

	return d.apply(ops, origin)
}

// apply performs the planned writes and folds the resulting changes into a
// single Result. Callers hold d.mu and have finished all validation. Writes
// touching a device's state also refresh that device's lastUpdated stamp.
func (d *Dispatcher) apply(ops []patchOp, origin string) (Result, error) {
	ops = append(ops, touchOps(ops)...)

	changes := make([]state.Change, 0, len(ops))
	for _, op := range ops {
		change, err := d.store.Write(op.path, op.value, origin)
		if err != nil {
			// Paths were validated up front; a write failure here is a bug.
			return Result{}, err
		}
		changes = append(changes, change)
	}

	d.logger.Debug("command applied",
		zap.Int("patches", len(ops)),
		zap.String("origin", origin))

	return Result{
		Success:   true,
		Changes:   changes,
		Timestamp: time.Now(),
	}, nil
}

func (d *Dispatcher) planToggle(action Action) ([]patchOp, error) {
	if action.Target == AllLightsTarget {
		ids := d.store.DeviceIDs()
		sort.Strings(ids)

		var ops []patchOp
		for _, id := range ids {
			dev, ok := d.store.Device(id)
			if !ok || !dev.HasCapability("power") {
				continue
			}
			ops = append(ops, patchOp{
				path:  state.DeviceStatePath(id, "power"),
				value: flipPower(dev.State["power"]),
			})
		}
		return ops, nil
	}

	dev, ok := d.store.Device(action.Target)
	if !ok {
		return nil, fmt.Errorf("%w: no device %q", ErrInvalidTarget, action.Target)
	}
	if !dev.HasCapability("power") {
		return nil, fmt.Errorf("%w: device %q has no power capability", ErrInvalidTarget, action.Target)
	}
	return []patchOp{{
		path:  state.DeviceStatePath(action.Target, "power"),
		value: flipPower(dev.State["power"]),
	}}, nil
}

func (d *Dispatcher) planSet(action Action) ([]patchOp, error) {
	dev, ok := d.store.Device(action.Target)
	if !ok {
		return nil, fmt.Errorf("%w: no device %q", ErrInvalidTarget, action.Target)
	}
	attr, ok := dev.PrimaryAttribute()
	if !ok {
		return nil, fmt.Errorf("%w: device type %q has no settable attribute", ErrInvalidTarget, dev.Type)
	}

	raw, ok := action.Payload["value"]
	if !ok {
		return nil, fmt.Errorf("%w: payload is missing \"value\"", ErrInvalidPayload)
	}
	value, ok := asNumber(raw)
	if !ok {
		return nil, fmt.Errorf("%w: \"value\" must be numeric", ErrInvalidPayload)
	}

	return []patchOp{{
		path:  state.DeviceStatePath(action.Target, attr),
		value: value,
	}}, nil
}

func (d *Dispatcher) planTrigger(action Action) ([]patchOp, error) {
	scene, ok := scenes[action.Target]
	if !ok {
		return nil, fmt.Errorf("%w: no scene %q (known scenes: %s)",
			ErrInvalidTarget, action.Target, strings.Join(SceneIDs(), ", "))
	}

	ops := make([]patchOp, 0, len(scene))
	for _, sw := range scene {
		if _, ok := d.store.Device(sw.deviceID); !ok {
			return nil, fmt.Errorf("%w: scene %q references missing device %q", ErrInvalidTarget, action.Target, sw.deviceID)
		}
		ops = append(ops, patchOp{
			path:  state.DeviceStatePath(sw.deviceID, sw.field),
			value: sw.value,
		})
	}
	return ops, nil
}

func (d *Dispatcher) planUpdate(action Action) ([]patchOp, error) {
	dev, ok := d.store.Device(action.Target)
	if !ok {
		return nil, fmt.Errorf("%w: no device %q", ErrInvalidTarget, action.Target)
	}
	if len(action.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	fields := make([]string, 0, len(action.Payload))
	for field := range action.Payload {
		if !dev.HasCapability(field) {
			return nil, fmt.Errorf("%w: device %q has no capability %q", ErrInvalidPayload, action.Target, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	ops := make([]patchOp, 0, len(fields))
	for _, field := range fields {
		ops = append(ops, patchOp{
			path:  state.DeviceStatePath(action.Target, field),
			value: action.Payload[field],
		})
	}
	return ops, nil
}

// touchOps plans a lastUpdated refresh for every device whose state is
// written by ops, once per device, in first-touch order.
func touchOps(ops []patchOp) []patchOp {
	now := time.Now()
	seen := make(map[string]bool)

	var out []patchOp
	for _, op := range ops {
		segments, err := state.SplitPath(op.path)
		if err != nil || len(segments) < 4 || segments[0] != "devices" || segments[2] != "state" {
			continue
		}
		id := segments[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, patchOp{
			path:  state.JoinPath("devices", id, "lastUpdated"),
			value: now,
		})
	}
	return out
}

func validatePath(path string) error {
	segments, err := state.SplitPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if len(segments) > MaxPathDepth {
		return fmt.Errorf("%w: %d segments (max %d)", ErrPathTooDeep, len(segments), MaxPathDepth)
	}
	return nil
}

// flipPower maps the current power value to its opposite. Anything that is
// not recognizably "on" is treated as off, so flipping always lands on a
// defined value.
func flipPower(current any) string {
	switch v := current.(type) {
	case string:
		if v == "on" {
			return "off"
		}
		return "on"
	case bool:
		if v {
			return "off"
		}
		return "on"
	default:
		return "on"
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
