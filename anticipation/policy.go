package anticipation

// SmoothOrSnap blends from the previously displayed value when the
// misprediction is within maxDistance, and snaps otherwise.
func SmoothOrSnap[T any](distance func(a, b T) float64, maxDistance, duration float64) ReconcileFunc[T] {
	return func(c *Controller[T], ev Event[T]) {
		d := distance(ev.Previous, ev.Authoritative)
		if d == 0 || d > maxDistance {
			return
		}
		c.Smooth(ev.Previous, ev.Authoritative, duration)
	}
}

// ReplayPending reanticipates by applying the anticipations the authority has
// not acknowledged yet on top of the authoritative value.
func ReplayPending[T any](apply func(base T, pending Record[T]) T) ReconcileFunc[T] {
	return func(c *Controller[T], ev Event[T]) {
		if len(ev.Pending) == 0 {
			return
		}
		v := ev.Authoritative
		for _, r := range ev.Pending {
			v = apply(v, r)
		}
		c.Reanticipate(v)
	}
}
