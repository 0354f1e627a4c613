package retail

import (
	"fmt"
	"strconv"
	"strings"
)

type Tier struct {
	Name      string `json:"name"`
	Threshold int64  `json:"threshold"`
}

// TierSchedule is ordered by ascending threshold and starts at 0, so every
// non-negative balance has a tier. Lower bounds are inclusive.
type TierSchedule []Tier

// DefaultTiers: copper below 500, silver 500-999, gold from 1000.
var DefaultTiers = TierSchedule{
	{Name: "copper", Threshold: 0},
	{Name: "silver", Threshold: 500},
	{Name: "gold", Threshold: 1000},
}

func (s TierSchedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("tier schedule is empty")
	}
	if s[0].Threshold != 0 {
		return fmt.Errorf("first tier %q must start at 0, got %d", s[0].Name, s[0].Threshold)
	}
	names := make(map[string]bool, len(s))
	for i, t := range s {
		if t.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		names[t.Name] = true
		if i > 0 && t.Threshold <= s[i-1].Threshold {
			return fmt.Errorf("tier %q threshold %d must exceed %d", t.Name, t.Threshold, s[i-1].Threshold)
		}
	}
	return nil
}

// TierFor selects the highest tier whose threshold is <= points.
func (s TierSchedule) TierFor(points int64) Tier {
	var cur Tier
	for _, t := range s {
		if t.Threshold > points {
			break
		}
		cur = t
	}
	return cur
}

// Progress reports the next tier above points and how many points are missing.
// ok is false at the top tier.
func (s TierSchedule) Progress(points int64) (next Tier, remaining int64, ok bool) {
	for _, t := range s {
		if t.Threshold > points {
			return t, t.Threshold - points, true
		}
	}
	return Tier{}, 0, false
}

// ParseTiers reads "copper:0,silver:500,gold:1000".
func ParseTiers(s string) (TierSchedule, error) {
	var out TierSchedule
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, raw, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("tier %q: want name:threshold", part)
		}
		th, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", part, err)
		}
		out = append(out, Tier{Name: strings.TrimSpace(name), Threshold: th})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s TierSchedule) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.Name + ":" + strconv.FormatInt(t.Threshold, 10)
	}
	return strings.Join(parts, ",")
}
