package ds

// Delta records that the content at Current succeeds the content at Previous.
// It carries no diff.
type Delta struct {
	Previous Address
	Current  Address
}
