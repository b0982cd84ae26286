package radio

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Check names understood by ValidateWith.
const (
	CheckBurst    = "burst"
	CheckSyncTone = "sync_tone"
	CheckSporadic = "sporadic"
	CheckWideband = "wideband"
	CheckSNR      = "snr"
)

const (
	burstRatioThreshold    = 10.0
	activityRatioThreshold = 5.0
	syncToneFraction       = 0.01
	wideBandwidthHz        = 50e3
	magnitudePeakFraction  = 0.1
)

// APT line sync tones.
var syncToneFrequencies = [2]float64{2080, 2400}

// DefaultChecks maps the known class labels to their corroborating check.
// Labels that are not listed fall back to CheckSNR.
var DefaultChecks = map[string]string{
	"ADS_B":        CheckBurst,
	"NOAA_APT":     CheckSyncTone,
	"ISM_sensors":  CheckSporadic,
	"FM_broadcast": CheckWideband,
}

// ValidationRecord is the outcome of one heuristic check. Metrics and Flags
// are flattened together with the note when serialised.
type ValidationRecord struct {
	Check   string
	Metrics map[string]float64
	Flags   map[string]bool
	Note    string
}

// Passed reports whether every boolean flag of the record is set. Records
// without flags (the SNR fallback) never pass or fail and report true. A
// record that no check produced never passes.
func (r ValidationRecord) Passed() bool {
	if r.Check == "" {
		return false
	}
	for _, ok := range r.Flags {
		if !ok {
			return false
		}
	}
	return true
}

// Fields flattens the record into a single map of field name to value.
func (r ValidationRecord) Fields() map[string]any {
	fields := make(map[string]any, len(r.Metrics)+len(r.Flags)+2)
	for key, value := range r.Metrics {
		fields[key] = value
	}
	for key, value := range r.Flags {
		fields[key] = value
	}
	fields["check"] = r.Check
	fields["note"] = r.Note
	return fields
}

// MarshalJSON writes the flattened form, e.g. {"has_bursts":true,"burst_ratio":42,"note":"..."}.
func (r ValidationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// UnmarshalJSON reverses MarshalJSON. Numbers become metrics and booleans flags.
func (r *ValidationRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := ValidationRecord{Metrics: map[string]float64{}, Flags: map[string]bool{}}
	for key, value := range fields {
		switch v := value.(type) {
		case float64:
			out.Metrics[key] = v
		case bool:
			out.Flags[key] = v
		case string:
			switch key {
			case "check":
				out.Check = v
			case "note":
				out.Note = v
			}
		}
	}
	*r = out
	return nil
}

// ValidationReport maps class labels to the record of their validation capture.
type ValidationReport map[string]ValidationRecord

// Labels returns the report keys in sorted order.
func (r ValidationReport) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// CheckFor returns the check name used to corroborate label.
func CheckFor(label string) string {
	if check, ok := DefaultChecks[label]; ok {
		return check
	}
	return CheckSNR
}

// Validate runs the heuristic registered for label, or the SNR estimate when
// the label has none. When the check cannot run the record carries only a
// note and does not pass.
func Validate(label string, buf Buffer) ValidationRecord {
	record, err := ValidateWith(CheckFor(label), buf)
	if err != nil {
		return ValidationRecord{Note: err.Error()}
	}
	return record
}

// ValidateWith runs a named check against buf.
func ValidateWith(check string, buf Buffer) (ValidationRecord, error) {
	if len(buf.Samples) == 0 {
		return ValidationRecord{}, fmt.Errorf("%w: empty buffer", ErrInsufficientSamples)
	}
	switch check {
	case CheckBurst:
		return checkBursts(buf), nil
	case CheckSyncTone:
		return checkSyncTones(buf), nil
	case CheckSporadic:
		return checkActivity(buf), nil
	case CheckWideband:
		return checkWideband(buf), nil
	case CheckSNR:
		return checkSNR(buf), nil
	default:
		return ValidationRecord{}, fmt.Errorf("%w: %q", ErrUnknownCheck, check)
	}
}

func burstRatio(samples []complex128) float64 {
	power := instantaneousPower(samples)
	return floats.Max(power) / (stat.Mean(power, nil) + Epsilon)
}

func checkBursts(buf Buffer) ValidationRecord {
	ratio := burstRatio(buf.Samples)
	return ValidationRecord{
		Check:   CheckBurst,
		Metrics: map[string]float64{"burst_ratio": ratio},
		Flags:   map[string]bool{"has_bursts": ratio > burstRatioThreshold},
		Note:    "ADS-B should show strong pulse bursts",
	}
}

func checkSyncTones(buf Buffer) ValidationRecord {
	power := powerSpectrum(buf.Samples)
	freqs := fftFreq(len(buf.Samples), 1/buf.SampleRate)
	p2080 := power[nearestBin(freqs, syncToneFrequencies[0])]
	p2400 := power[nearestBin(freqs, syncToneFrequencies[1])]
	total := floats.Sum(power)
	return ValidationRecord{
		Check: CheckSyncTone,
		Metrics: map[string]float64{
			"power_2080": p2080,
			"power_2400": p2400,
		},
		Flags: map[string]bool{"sync_tone_present": p2080+p2400 > syncToneFraction*total},
		Note:  "NOAA APT should have 2080/2400 Hz sync tones",
	}
}

func checkActivity(buf Buffer) ValidationRecord {
	ratio := burstRatio(buf.Samples)
	return ValidationRecord{
		Check:   CheckSporadic,
		Metrics: map[string]float64{"burst_ratio": ratio},
		Flags:   map[string]bool{"has_activity": ratio > activityRatioThreshold},
		Note:    "ISM sensors transmit in short sporadic bursts",
	}
}

func checkWideband(buf Buffer) ValidationRecord {
	mag := magnitudeSpectrum(buf.Samples)
	threshold := magnitudePeakFraction * floats.Max(mag)
	count := 0
	for _, m := range mag {
		if m > threshold {
			count++
		}
	}
	bandwidth := float64(count) * buf.SampleRate / float64(len(mag))
	return ValidationRecord{
		Check:   CheckWideband,
		Metrics: map[string]float64{"bandwidth_hz": bandwidth},
		Flags:   map[string]bool{"is_wideband": bandwidth > wideBandwidthHz},
		Note:    "FM broadcast should be wideband (~200 kHz)",
	}
}

// checkSNR is the fallback for labels without a dedicated check. Both terms
// carry Epsilon so a silent capture reports 0 dB instead of -Inf.
func checkSNR(buf Buffer) ValidationRecord {
	power := instantaneousPower(buf.Samples)
	snr := 10 * math.Log10((floats.Max(power)+Epsilon)/(stat.Mean(power, nil)+Epsilon))
	return ValidationRecord{
		Check:   CheckSNR,
		Metrics: map[string]float64{"snr_db": snr},
		Note:    "Generic signal quality check",
	}
}
