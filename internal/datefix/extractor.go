package datefix

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/acm19/datefix/internal/logger"
)

// minPlausibleYear is the lower bound for a recovered date. Chat applications
// that mangle timestamps did not exist before this.
const minPlausibleYear = 2000

// Match is a successful extraction: the rule's origin and the resolved date.
// A date without a time component resolves to midnight local time.
type Match struct {
	Origin Origin
	Date   time.Time
}

// namingRule binds an origin to a filename pattern and a date parser.
// parse is nil for conventions whose names carry no date.
type namingRule struct {
	origin Origin
	re     *regexp.Regexp
	parse  func(groups []string) (time.Time, error)
}

// namingRules is the fixed priority order for ambiguous names: WhatsApp
// first (most specific, date embedded), Instagram next (date and time
// embedded), Snapchat last (no date in the name at all). First match wins.
var namingRules = []namingRule{
	{
		origin: OriginWhatsApp,
		re:     regexp.MustCompile(`^IMG-(\d{8})-WA\d{4}\.jpg$`),
		parse: func(groups []string) (time.Time, error) {
			return time.ParseInLocation("20060102", groups[1], time.Local)
		},
	},
	{
		origin: OriginWhatsApp,
		re:     regexp.MustCompile(`^VID-(\d{8})-WA\d{4}\.mp4$`),
		parse: func(groups []string) (time.Time, error) {
			return time.ParseInLocation("20060102", groups[1], time.Local)
		},
	},
	{
		origin: OriginInstagram,
		re:     regexp.MustCompile(`^IMG_(\d{8})_(\d{6})_\d{3}\.(?:jpg|jpeg|png|webp)$`),
		parse: func(groups []string) (time.Time, error) {
			return time.ParseInLocation("20060102 150405", groups[1]+" "+groups[2], time.Local)
		},
	},
	{
		origin: OriginSnapchat,
		re:     regexp.MustCompile(`^Snapchat-\d+\.(?:jpg|mp4)$`),
		parse:  nil,
	},
}

// parentDirLayouts are the date formats recognised in a parent directory
// name when the filename itself carries no date.
var parentDirLayouts = []string{"2006-01-02", "20060102"}

// FilenameDateExtractor resolves a trustworthy date from a file's name, or
// failing that from its immediate parent directory name. It performs no I/O.
type FilenameDateExtractor struct {
	rules    []namingRule
	fallback time.Time
	now      func() time.Time
}

// NewFilenameDateExtractor creates an extractor restricted to the given
// origins. fallback is applied to matched files whose name carries no date;
// pass the zero time when no fallback is configured.
func NewFilenameDateExtractor(origins []Origin, fallback time.Time) *FilenameDateExtractor {
	enabled := make(map[Origin]bool, len(origins))
	for _, o := range origins {
		enabled[o] = true
	}

	var rules []namingRule
	for _, r := range namingRules {
		if enabled[r.origin] {
			rules = append(rules, r)
		}
	}

	return &FilenameDateExtractor{
		rules:    rules,
		fallback: fallback,
		now:      time.Now,
	}
}

// Extract resolves a date for the file. The second return value is false
// when no rule matches or no plausible date can be recovered. Impossible
// calendar dates in a matching name count as no match, never an error.
func (e *FilenameDateExtractor) Extract(filePath string) (Match, bool) {
	name := filepath.Base(filePath)

	for _, rule := range e.rules {
		groups := rule.re.FindStringSubmatch(name)
		if groups == nil {
			continue
		}

		if rule.parse == nil {
			date, ok := e.datelessFallback(filePath)
			if !ok {
				logger.Debug("Matched dateless rule but no fallback date available", "file", name, "origin", rule.origin)
				return Match{}, false
			}
			return Match{Origin: rule.origin, Date: date}, true
		}

		date, err := rule.parse(groups)
		if err != nil {
			logger.Debug("Filename date is not a valid calendar date", "file", name, "error", err)
			return Match{}, false
		}
		if !e.plausible(date) {
			logger.Debug("Filename date is outside the plausible range", "file", name, "date", date)
			return Match{}, false
		}
		return Match{Origin: rule.origin, Date: date}, true
	}

	return Match{}, false
}

// datelessFallback resolves a date for names without one: the configured
// fallback date first, then the immediate parent directory name.
func (e *FilenameDateExtractor) datelessFallback(filePath string) (time.Time, bool) {
	if !e.fallback.IsZero() && e.plausible(e.fallback) {
		return e.fallback, true
	}

	parent := filepath.Base(filepath.Dir(filePath))
	for _, layout := range parentDirLayouts {
		date, err := time.ParseInLocation(layout, parent, time.Local)
		if err == nil && e.plausible(date) {
			return date, true
		}
	}
	return time.Time{}, false
}

// plausible bounds the year to [2000, current year + 1].
func (e *FilenameDateExtractor) plausible(date time.Time) bool {
	year := date.Year()
	return year >= minPlausibleYear && year <= e.now().Year()+1
}
