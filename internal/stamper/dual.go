package stamper

// DualStamper drives a primary brush and an optional secondary (dual
// brush) tip from the same points. Each side has its own spacing, timing
// and pressure response.
type DualStamper struct {
	Primary   *Stamper
	Secondary *Stamper
}

// NewDual creates a dual stamper. A nil secondary config disables the
// secondary tip.
func NewDual(primary Config, secondary *Config) *DualStamper {
	d := &DualStamper{Primary: New(primary)}
	if secondary != nil {
		d.Secondary = New(*secondary)
	}
	return d
}

// BeginStroke opens a stroke on both tips.
func (d *DualStamper) BeginStroke() {
	d.Primary.BeginStroke()
	if d.Secondary != nil {
		d.Secondary.BeginStroke()
	}
}

// Process feeds in to both tips.
func (d *DualStamper) Process(in Input) (primary, secondary []Dab) {
	primary = d.Primary.Process(in)
	if d.Secondary != nil {
		secondary = d.Secondary.Process(in)
	}
	return primary, secondary
}

// Finalize closes the stroke on both tips.
func (d *DualStamper) Finalize() (primary, secondary []Dab) {
	primary = d.Primary.Finalize()
	if d.Secondary != nil {
		secondary = d.Secondary.Finalize()
	}
	return primary, secondary
}
