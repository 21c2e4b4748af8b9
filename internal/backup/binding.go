package backup

// Binding connects an Adapter to a Host for the adapter's lifetime:
// constructed → receiving updates → removed.
type Binding struct {
	host    Host
	adapter Adapter

	cancelStart func()
	cancelTrack func()
	started     bool
	removed     bool
}

// Bind registers adapter with host. Source tracking starts when the host
// signals startup; until then the entity keeps its construction state.
func Bind(host Host, adapter Adapter) *Binding {
	b := &Binding{host: host, adapter: adapter}
	b.cancelStart = host.ListenOnceStarted(b.handleStart)
	return b
}

// Adapter returns the bound adapter.
func (b *Binding) Adapter() Adapter { return b.adapter }

func (b *Binding) handleStart() {
	if b.removed {
		return
	}
	b.started = true
	b.track()
	b.adapter.Selector().Refresh()
	b.observe(true)
	b.host.RequestPublish(b.adapter)
}

func (b *Binding) track() {
	b.cancelTrack = b.host.TrackStateChange(b.adapter.Selector().Sources(), b.handleStateChange)
}

func (b *Binding) handleStateChange(_ string) {
	if b.removed || !b.started {
		return
	}
	changed := b.adapter.Selector().Update()
	b.observe(changed)
	if changed {
		b.host.RequestPublish(b.adapter)
	}
}

// Resync re-runs a refresh outside of a state change, e.g. after the host
// reloaded its whole state store.
func (b *Binding) Resync() {
	b.handleStateChange("")
}

// Reconfigure replaces the entity's sources and moves the state tracking
// over to the new list.
func (b *Binding) Reconfigure(sources []string) error {
	if err := b.adapter.Selector().Reconfigure(sources); err != nil {
		return err
	}
	if !b.started || b.removed {
		return nil
	}
	if b.cancelTrack != nil {
		b.cancelTrack()
	}
	b.track()
	b.handleStateChange("")
	return nil
}

// Remove deregisters every callback this binding registered.
func (b *Binding) Remove() {
	b.removed = true
	if b.cancelStart != nil {
		b.cancelStart()
	}
	if b.cancelTrack != nil {
		b.cancelTrack()
		b.cancelTrack = nil
	}
}

func (b *Binding) observe(changed bool) {
	if o, ok := b.host.(RefreshObserver); ok {
		o.ObserveRefresh(b.adapter.EntityID(), b.adapter.Selector().SelectedIndex(), changed)
	}
}
