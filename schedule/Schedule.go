// Package schedule merges overlapping charging profiles into one composite schedule.
package schedule

import (
	"sort"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// Interval is one constant power limit between Start and End.
type Interval struct {
	Start      time.Time
	End        time.Time
	Limit      float64
	StackLevel int

	order int
}

func (i Interval) covers(at time.Time) bool {
	return !at.Before(i.Start) && at.Before(i.End)
}

// Merge resolves overlaps: on every instant the interval with the highest stack level wins,
// ties going to the interval given last. Adjacent pieces with the same limit are joined.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	var bounds []time.Time
	for i := range intervals {
		intervals[i].order = i
		bounds = append(bounds, intervals[i].Start, intervals[i].End)
	}
	sort.Slice(bounds, func(a, b int) bool { return bounds[a].Before(bounds[b]) })

	var merged []Interval
	for k := 0; k+1 < len(bounds); k++ {
		from, to := bounds[k], bounds[k+1]
		if !from.Before(to) {
			continue
		}

		winner := -1
		for i, interval := range intervals {
			if !interval.covers(from) {
				continue
			}
			if winner < 0 || interval.StackLevel > intervals[winner].StackLevel ||
				(interval.StackLevel == intervals[winner].StackLevel && interval.order > intervals[winner].order) {
				winner = i
			}
		}
		if winner < 0 {
			continue
		}

		piece := Interval{Start: from, End: to, Limit: intervals[winner].Limit, StackLevel: intervals[winner].StackLevel}
		if n := len(merged); n > 0 && merged[n-1].End.Equal(from) &&
			merged[n-1].Limit == piece.Limit && merged[n-1].StackLevel == piece.StackLevel {
			merged[n-1].End = to
			continue
		}
		merged = append(merged, piece)
	}

	return merged
}

// Intervals expands the periods of one profile, clipped to [now, now+duration).
func Intervals(profile types.ChargingProfile, now time.Time, duration int) []Interval {
	cs := profile.ChargingSchedule
	if cs == nil || len(cs.ChargingSchedulePeriod) == 0 {
		return nil
	}

	start := now
	if profile.ChargingProfileKind != types.ChargingProfileKindRelative && cs.StartSchedule != nil {
		start = cs.StartSchedule.Time
	}

	horizon := now.Add(time.Duration(duration) * time.Second)
	end := horizon
	if cs.Duration != nil {
		if scheduleEnd := start.Add(time.Duration(*cs.Duration) * time.Second); scheduleEnd.Before(end) {
			end = scheduleEnd
		}
	}
	if profile.ValidTo != nil && profile.ValidTo.Time.Before(end) {
		end = profile.ValidTo.Time
	}

	periods := append([]types.ChargingSchedulePeriod(nil), cs.ChargingSchedulePeriod...)
	sort.SliceStable(periods, func(a, b int) bool { return periods[a].StartPeriod < periods[b].StartPeriod })

	var intervals []Interval
	for i, period := range periods {
		from := start.Add(time.Duration(period.StartPeriod) * time.Second)
		to := end
		if i+1 < len(periods) {
			to = start.Add(time.Duration(periods[i+1].StartPeriod) * time.Second)
		}
		if from.Before(now) {
			from = now
		}
		if to.After(end) {
			to = end
		}
		if !from.Before(to) {
			continue
		}
		intervals = append(intervals, Interval{Start: from, End: to, Limit: period.Limit, StackLevel: profile.StackLevel})
	}

	return intervals
}

// Composite builds the merged schedule of profiles for the next duration seconds.
// It returns nil when no profile contributes to that window.
func Composite(profiles []types.ChargingProfile, now time.Time, duration int, unit types.ChargingRateUnitType) *types.ChargingSchedule {
	var (
		all     []Interval
		minRate *float64
	)
	for _, profile := range profiles {
		all = append(all, Intervals(profile, now, duration)...)
		if cs := profile.ChargingSchedule; cs != nil && cs.MinChargingRate != nil {
			if minRate == nil || *cs.MinChargingRate > *minRate {
				rate := *cs.MinChargingRate
				minRate = &rate
			}
		}
	}

	merged := Merge(all)
	if len(merged) == 0 {
		return nil
	}

	periods := make([]types.ChargingSchedulePeriod, 0, len(merged))
	origin := merged[0].Start
	for _, interval := range merged {
		periods = append(periods, types.NewChargingSchedulePeriod(int(interval.Start.Sub(origin).Seconds()), interval.Limit))
	}

	total := int(merged[len(merged)-1].End.Sub(origin).Seconds())
	if unit == "" {
		unit = types.ChargingRateUnitWatts
	}

	return &types.ChargingSchedule{
		Duration:               &total,
		StartSchedule:          types.NewDateTime(origin),
		ChargingRateUnit:       unit,
		ChargingSchedulePeriod: periods,
		MinChargingRate:        minRate,
	}
}
