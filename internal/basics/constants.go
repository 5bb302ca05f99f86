// Package basics aggregates a device event stream into the "basics" summary:
// typed section buckets, blood glucose distribution, insulin and carb averages,
// section availability and the device mix label.
package basics

import (
	"time"

	"github.com/mrcode/nightscout-basics/internal/models"
)

const (
	CGMCalculated = "calculatedCGM"
	CGMInDay      = 288
	NoCGM         = "noCGM"
	NotEnoughCGM  = "notEnoughCGM"

	NoSiteChange          = "noSiteChange"
	SiteChange            = "siteChange"
	SiteChangeReservoir   = models.SubTypeReservoirChange
	SiteChangeTubing      = models.SubTypeTubingPrime
	SiteChangeCannula     = models.SubTypeCannulaPrime
	SectionTypeUndeclared = "undeclared"

	Insulet   = "Insulet"
	Tandem    = "Tandem"
	Animas    = "Animas"
	Medtronic = "Medtronic"

	DefaultDays = 14
	dayFormat   = "2006-01-02"
)

// Section keys
const (
	SectionBasals            = "basals"
	SectionBoluses           = "boluses"
	SectionSiteChanges       = "siteChanges"
	SectionFingersticks      = "fingersticks"
	SectionBGDistribution    = "bgDistribution"
	SectionBasalBolusRatio   = "basalBolusRatio"
	SectionTotalDailyDose    = "totalDailyDose"
	SectionAverageDailyCarbs = "averageDailyCarbs"
)

// Statistic keys used by aggregate sections
const (
	StatBasalBolusRatio   = "basalBolusRatio"
	StatAverageDailyDose  = "averageDailyDose"
	StatAverageDailyCarbs = "averageDailyCarbs"
)

// Selector subtotal keys
const (
	TotalKey = "total"

	BolusWizard      = "wizard"
	BolusCorrection  = "correction"
	BolusExtended    = "extended"
	BolusInterrupted = "interrupted"
	BolusOverride    = "override"
	BolusUnderride   = "underride"
	BolusManual      = "manual"

	BasalTemp          = "temp"
	BasalSuspend       = "suspend"
	BasalAutomatedStop = "automatedStop"

	FingerstickMeter       = "meter"
	FingerstickManual      = "manual"
	FingerstickCalibration = "calibration"
	FingerstickVeryLow     = "veryLow"
	FingerstickVeryHigh    = "veryHigh"
)

// Telemetry event names
const (
	MetricViewedBasics       = "web - viewed basics data"
	MetricPumpVacationNotice = "web - pump vacation message displayed"
)

// siteChangePrecedence lists, per pump manufacturer, the site change subtypes
// to try in order. The first one with data becomes the section's source.
// Manufacturers whose pumps record both primes rely on the user's preference,
// which is prepended at resolution time.
var siteChangePrecedence = map[string][]string{
	Insulet:   {SiteChangeReservoir},
	Tandem:    {},
	Animas:    {},
	Medtronic: {},
}

// preferableSiteChanges are the subtypes a user may choose for non-Insulet pumps
var preferableSiteChanges = []string{SiteChangeCannula, SiteChangeTubing}

const oneDay = 24 * time.Hour
