package coros

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FileType identifies an export format on the activity download endpoint.
type FileType int

const (
	FileTypeCSV FileType = 0
	FileTypeGPX FileType = 1
	FileTypeKML FileType = 2
	FileTypeTCX FileType = 3
	FileTypeFIT FileType = 4
)

var fileTypeNames = map[FileType]string{
	FileTypeCSV: "csv",
	FileTypeGPX: "gpx",
	FileTypeKML: "kml",
	FileTypeTCX: "tcx",
	FileTypeFIT: "fit",
}

func (ft FileType) String() string {
	if name, ok := fileTypeNames[ft]; ok {
		return name
	}
	return fmt.Sprintf("FileType(%d)", int(ft))
}

// ParseFileType maps a format name (case-insensitive) to its FileType.
func ParseFileType(name string) (FileType, error) {
	lower := strings.ToLower(name)
	for ft, n := range fileTypeNames {
		if n == lower {
			return ft, nil
		}
	}
	return 0, fmt.Errorf("unknown file type %q (expected one of csv, gpx, kml, tcx, fit)", name)
}

// SportType is a vendor-defined activity classification code. Codes the
// vendor has not published decode fine: Known reports false and String
// falls back to the raw integer.
type SportType int

const (
	SportRun          SportType = 100
	SportIndoorRun    SportType = 101
	SportTrackRun     SportType = 103
	SportHike         SportType = 104
	SportMtnClimb     SportType = 105
	SportBike         SportType = 200
	SportIndoorBike   SportType = 201
	SportPoolSwim     SportType = 300
	SportOpenWater    SportType = 301
	SportGymCardio    SportType = 400
	SportGpsCardio    SportType = 401
	SportStrength     SportType = 402
	SportSki          SportType = 500
	SportSnowboard    SportType = 501
	SportXcSki        SportType = 502
	SportSkiTouring   SportType = 503
	SportRowing       SportType = 700
	SportIndoorRower  SportType = 701
	SportWhitewater   SportType = 702
	SportFlatwater    SportType = 704
	SportWindsurfing  SportType = 705
	SportSpeedsurfing SportType = 706
	SportWalk         SportType = 900
)

var sportTypeNames = map[SportType]string{
	SportRun:          "Run",
	SportIndoorRun:    "IndoorRun",
	SportTrackRun:     "TrackRun",
	SportHike:         "Hike",
	SportMtnClimb:     "MtnClimb",
	SportBike:         "Bike",
	SportIndoorBike:   "IndoorBike",
	SportPoolSwim:     "PoolSwim",
	SportOpenWater:    "OpenWater",
	SportGymCardio:    "GymCardio",
	SportGpsCardio:    "GpsCardio",
	SportStrength:     "Strength",
	SportSki:          "Ski",
	SportSnowboard:    "Snowboard",
	SportXcSki:        "XcSki",
	SportSkiTouring:   "SkiTouring",
	SportRowing:       "Rowing",
	SportIndoorRower:  "IndoorRower",
	SportWhitewater:   "Whitewater",
	SportFlatwater:    "Flatwater",
	SportWindsurfing:  "Windsurfing",
	SportSpeedsurfing: "Speedsurfing",
	SportWalk:         "Walk",
}

// Known reports whether the code is one the vendor has published a name for.
func (st SportType) Known() bool {
	_, ok := sportTypeNames[st]
	return ok
}

func (st SportType) String() string {
	if name, ok := sportTypeNames[st]; ok {
		return name
	}
	return fmt.Sprintf("SportType(%d)", int(st))
}

// Activity is one normalized record from the activity listing endpoint.
//
// The typed fields are derived from the raw vendor document; Fields keeps
// every vendor field as received, except that numeric has*/is* flags are
// coerced to booleans. Date/time values are never meant to be sent back.
type Activity struct {
	LabelID   string
	Name      string
	SportType SportType
	Date      time.Time // midnight, no zone significance beyond the calendar day
	StartTime time.Time // in the activity's fixed start zone
	EndTime   time.Time // in the activity's fixed end zone

	// Fields holds the raw vendor record: name, counts, distances, flags.
	Fields map[string]any
}

// quarterHourZone converts the vendor's quarter-hour UTC-offset count to a
// fixed time zone, e.g. +5 -> UTC+01:15.
func quarterHourZone(quarters int) *time.Location {
	offset := quarters * 15 * 60
	sign := "+"
	if offset < 0 {
		sign = "-"
	}
	abs := offset
	if abs < 0 {
		abs = -abs
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, abs/3600, abs%3600/60)
	return time.FixedZone(name, offset)
}

func fieldInt(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// isFlagField matches the vendor's boolean-flag naming convention.
func isFlagField(name string) bool {
	return strings.HasPrefix(name, "has") || strings.HasPrefix(name, "is")
}

// normalizeActivity turns one raw listing record into an Activity. Unknown
// sport-type codes are carried through untouched; tell is the only signal.
func normalizeActivity(raw map[string]any, tell func(code int)) *Activity {
	a := &Activity{
		LabelID: fieldString(raw, "labelId"),
		Name:    fieldString(raw, "name"),
		Fields:  raw,
	}

	if code, ok := fieldInt(raw, "sportType"); ok {
		a.SportType = SportType(code)
		if !a.SportType.Known() && tell != nil {
			tell(int(code))
		}
	}

	if d, ok := fieldInt(raw, "date"); ok {
		// yyyymmdd
		a.Date = time.Date(int(d/10000), time.Month(d/100%100), int(d%100), 0, 0, 0, 0, time.UTC)
	}

	startZone, endZone := time.UTC, time.UTC
	if q, ok := fieldInt(raw, "startTimezone"); ok {
		startZone = quarterHourZone(int(q))
	}
	if q, ok := fieldInt(raw, "endTimezone"); ok {
		endZone = quarterHourZone(int(q))
	}
	if ts, ok := fieldInt(raw, "startTime"); ok {
		a.StartTime = time.Unix(ts, 0).In(startZone)
	}
	if ts, ok := fieldInt(raw, "endTime"); ok {
		a.EndTime = time.Unix(ts, 0).In(endZone)
	}

	for k := range raw {
		if !isFlagField(k) {
			continue
		}
		if n, ok := fieldInt(raw, k); ok {
			raw[k] = n != 0
		}
	}

	return a
}
