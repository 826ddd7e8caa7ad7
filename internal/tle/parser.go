package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 1440.0

// ParseResult holds the records parsed from one document, in source order,
// and the number of 3-line groups that were skipped as malformed.
type ParseResult struct {
	Records []ElementRecord
	Skipped int
}

// Parse reads 3-line NORAD TLE format from r. Non-empty lines are grouped in
// threes (name, line 1, line 2); a trailing incomplete group is discarded.
// Malformed groups are skipped with a warning log and counted, never returned
// as errors. The only error is a failure to read r.
func Parse(r io.Reader, logger *slog.Logger) (ParseResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{}, fmt.Errorf("reading TLE data: %w", err)
	}

	var res ParseResult
	for i := 0; i+2 < len(lines); i += 3 {
		rec, err := parseGroup(lines[i], lines[i+1], lines[i+2])
		if err != nil {
			logger.Warn("skipping malformed TLE entry",
				"group_index", i/3,
				"name", strings.TrimSpace(lines[i]),
				"error", err,
			)
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if rem := len(lines) % 3; rem != 0 {
		logger.Warn("discarding trailing incomplete TLE entry", "lines", rem)
		res.Skipped++
	}

	return res, nil
}

func parseGroup(name, line1, line2 string) (ElementRecord, error) {
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return ElementRecord{}, errors.New("line prefixes must be '1 ' and '2 '")
	}
	if len(line1) < 32 {
		return ElementRecord{}, fmt.Errorf("line1 too short (%d chars)", len(line1))
	}
	if err := CheckNumericFields(line1, line2); err != nil {
		return ElementRecord{}, err
	}

	// Catalog number: line 1 columns 3-7.
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil || noradID <= 0 {
		return ElementRecord{}, fmt.Errorf("invalid catalog number %q", noradStr)
	}

	// Epoch: line 1 columns 19-32.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementRecord{}, err
	}

	return ElementRecord{
		NORADID:    noradID,
		Name:       strings.TrimSpace(name),
		Line1:      line1,
		Line2:      line2,
		Epoch:      epoch,
		MeanMotion: parseMeanMotion(line2),
	}, nil
}

// parseMeanMotion reads revolutions per day from line 2 columns 53-63 and
// converts to radians per minute. Missing or unparseable values yield 0.
func parseMeanMotion(line2 string) float64 {
	if len(line2) < 63 {
		return 0
	}
	revs, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil || math.IsNaN(revs) || math.IsInf(revs, 0) {
		return 0
	}
	return revs * 2 * math.Pi / minutesPerDay
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1.0 = Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
