package flowengine

import (
	"sort"
	"strconv"

	"github.com/bubblelab/bubbleflow/flowstore"
)

type bubbleKind int

const (
	kindOriginal bubbleKind = iota
	kindClone
)

// bubbleInstance is the classified form of a raw bubble descriptor.
// Classification happens once per validation call so the validators
// never probe optional descriptor fields at the point of use.
type bubbleInstance struct {
	variableID int64
	name       string
	kind       bubbleKind
	callSite   string
	hasClones  bool
}

// key returns the bubble's identity key: the stringified variable id.
// Credential requirements and selections are both indexed by this key.
func (b bubbleInstance) key() string {
	return strconv.FormatInt(b.variableID, 10)
}

// isTemplate reports whether the bubble is a design-time original that
// has been cloned to at least one call site. Templates are skipped
// during credential validation; their clones carry the requirements.
func (b bubbleInstance) isTemplate() bool {
	return b.kind == kindOriginal && b.hasClones
}

// classifyBubbles converts the raw descriptor map into an ordered list
// of tagged instances. Descriptors with a nil variable id are dropped
// as malformed. Ordering is by variable id (numeric when the map key
// parses, lexical otherwise) so repeated calls iterate identically.
func classifyBubbles(descriptors map[string]flowstore.BubbleParameter) []bubbleInstance {
	cloneTargets := make(map[int64]bool)
	for _, d := range descriptors {
		if d.ClonedFromVariableID != nil {
			cloneTargets[*d.ClonedFromVariableID] = true
		}
	}

	keys := make([]string, 0, len(descriptors))
	for key := range descriptors {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.ParseInt(keys[i], 10, 64)
		b, bErr := strconv.ParseInt(keys[j], 10, 64)
		if aErr == nil && bErr == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})

	instances := make([]bubbleInstance, 0, len(descriptors))
	for _, key := range keys {
		d := descriptors[key]
		if d.VariableID == nil {
			continue
		}

		instance := bubbleInstance{
			variableID: *d.VariableID,
			name:       d.BubbleName,
			hasClones:  cloneTargets[*d.VariableID],
		}
		if d.IsClone() {
			instance.kind = kindClone
			instance.callSite = d.InvocationCallSiteKey
		}
		instances = append(instances, instance)
	}
	return instances
}
