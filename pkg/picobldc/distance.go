package picobldc

type positionProvider interface {
	RawPosition(ch int) (int16, error)
}

// DistanceTracker extends the board's 16-bit position counters, which wrap every 65536
// ticks, into 64-bit totals.  It has to be polled at least once per half wrap.
type DistanceTracker struct {
	pico positionProvider

	doneFirstPoll PerChannel[bool]
	lastRawValues PerChannel[int16]

	accumulator PerChannel[int64]
}

func NewDistanceTracker(pico positionProvider) *DistanceTracker {
	return &DistanceTracker{
		pico: pico,
	}
}

// PollChannel reads one channel and returns its accumulated position.  The first poll of
// a channel takes the raw counter as the starting point.
func (d *DistanceTracker) PollChannel(ch int) (int64, error) {
	raw, err := d.pico.RawPosition(ch)
	if err != nil {
		return 0, err
	}

	if d.doneFirstPoll[ch] {
		// int16 subtraction wraps, giving the shortest way round.
		delta := raw - d.lastRawValues[ch]
		d.accumulator[ch] += int64(delta)
	} else {
		d.accumulator[ch] = int64(raw)
	}

	d.lastRawValues[ch] = raw
	d.doneFirstPoll[ch] = true
	return d.accumulator[ch], nil
}

// Set records that the board's counter for ch has just been preset to position.
func (d *DistanceTracker) Set(ch int, position int64) {
	d.accumulator[ch] = position
	d.lastRawValues[ch] = int16(position)
	d.doneFirstPoll[ch] = true
}
