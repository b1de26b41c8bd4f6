package listctl

// ActionColumnPrefix prefixes the id of every action column.
const ActionColumnPrefix = "action-"

// Condition reports whether a dynamic column is currently shown.
type Condition func() bool

type dynamicColumn struct {
	name  string
	after string
	when  Condition
}

// RegisterDynamicColumn adds a column spliced in right after the column
// named after whenever when holds. The condition is evaluated on every call
// to Columns. If the anchor is not present the column is appended after the
// display columns.
func (c *Controller) RegisterDynamicColumn(name, after string, when Condition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dynamic = append(c.dynamic, dynamicColumn{name: name, after: after, when: when})
}

// RegisterActionColumn adds an action column. Action columns follow every
// display column, in registration order.
func (c *Controller) RegisterActionColumn(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, ActionColumnPrefix+name)
}

// Columns returns the column ids to display: static columns, active dynamic
// columns at their anchors, then action columns.
func (c *Controller) Columns() []string {
	c.mu.RLock()
	static := c.cfg.Columns
	dynamic := append([]dynamicColumn(nil), c.dynamic...)
	actions := append([]string(nil), c.actions...)
	c.mu.RUnlock()

	cols := make([]string, 0, len(static)+len(dynamic)+len(actions))
	cols = append(cols, static...)
	for _, d := range dynamic {
		if d.when != nil && !d.when() {
			continue
		}
		cols = insertAfter(cols, d.after, d.name)
	}
	return append(cols, actions...)
}

func insertAfter(cols []string, anchor, name string) []string {
	for i, col := range cols {
		if col == anchor {
			cols = append(cols, "")
			copy(cols[i+2:], cols[i+1:])
			cols[i+1] = name
			return cols
		}
	}
	return append(cols, name)
}
