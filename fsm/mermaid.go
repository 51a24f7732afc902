package fsm

import (
	"bytes"
	"fmt"
	"sort"
)

// MermaidDiagram renders the states and their transitions as a mermaid state
// diagram. States and edges are sorted so the output is stable.
func MermaidDiagram(states States) string {
	var b bytes.Buffer
	fmt.Fprint(&b, "```mermaid\nstateDiagram-v2\n")

	for _, state := range sortedKeys(states) {
		edges := states[StateType(state)]

		// write state name
		if len(state) > 0 {
			fmt.Fprintf(&b, "%s\n", state)
		} else {
			state = "[*]"
		}

		events := make([]string, 0, len(edges.Transitions))
		for event := range edges.Transitions {
			events = append(events, string(event))
		}
		sort.Strings(events)

		// write transitions
		for _, event := range events {
			target := edges.Transitions[EventType(event)]
			fmt.Fprintf(&b, "%s --> %s: %s\n", state, target, event)
		}
	}

	fmt.Fprint(&b, "```\n")

	return b.String()
}

func sortedKeys(m States) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	return keys
}
