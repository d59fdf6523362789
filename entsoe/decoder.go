package entsoe

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// PublicationMarketDocument represents the root element of the ENTSO-E
// day-ahead price XML (urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:3).
type PublicationMarketDocument struct {
	XMLName            xml.Name     `xml:"Publication_MarketDocument"`
	MRID               string       `xml:"mRID"`
	Type               string       `xml:"type"`
	CreatedDateTime    string       `xml:"createdDateTime"`
	PeriodTimeInterval TimeInterval `xml:"period.timeInterval"`
	TimeSeries         []TimeSeries `xml:"TimeSeries"`
}

// TimeSeries represents one price curve of the document.
type TimeSeries struct {
	MRID                 string   `xml:"mRID"`
	BusinessType         string   `xml:"businessType"`
	InDomainMRID         string   `xml:"in_Domain.mRID"`
	OutDomainMRID        string   `xml:"out_Domain.mRID"`
	CurrencyUnitName     string   `xml:"currency_Unit.name"`
	PriceMeasureUnitName string   `xml:"price_Measure_Unit.name"`
	CurveType            string   `xml:"curveType"`
	Periods              []Period `xml:"Period"`
}

// Period represents a delivery interval with a resolution and price points.
// Resolution is kept as the raw ISO 8601 duration string; see
// ResolutionDuration for the interpretation.
type Period struct {
	TimeInterval TimeInterval `xml:"timeInterval"`
	Resolution   string       `xml:"resolution"`
	Points       []Point      `xml:"Point"`
}

// Point represents a price point with a 1-based position and a price in EUR/MWh.
type Point struct {
	Position    int     `xml:"position"`
	PriceAmount float64 `xml:"price.amount"`
}

// TimeInterval represents a time interval with start and end in UTC.
type TimeInterval struct {
	Start time.Time `xml:"start"`
	End   time.Time `xml:"end"`
}

// UnmarshalXML implements custom XML unmarshaling for TimeInterval.
// ENTSO-E omits seconds ("2025-01-07T23:00Z"), which time.RFC3339 rejects.
func (ti *TimeInterval) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		Start string `xml:"start"`
		End   string `xml:"end"`
	}

	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	var err error
	ti.Start, err = parseTimeString(aux.Start)
	if err != nil {
		return fmt.Errorf("error parsing start time: %w", err)
	}

	ti.End, err = parseTimeString(aux.End)
	if err != nil {
		return fmt.Errorf("error parsing end time: %w", err)
	}

	return nil
}

// parseTimeString parses the time formats seen in ENTSO-E XML.
func parseTimeString(timeStr string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,            // 2025-01-07T23:00:00Z
		"2006-01-02T15:04Z",     // 2025-01-07T23:00Z
		"2006-01-02T15:04Z07:00", // 2025-01-07T23:00+01:00
	} {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %s", timeStr)
}

// ResolutionDuration converts an ENTSO-E resolution string to a duration.
// PT60M and PT1H map to one hour, PT15M and PT30M to their minute counts.
// Unknown strings are assumed hourly; the second return value reports whether
// the string was recognized so the caller can log the assumption.
func ResolutionDuration(resolution string) (time.Duration, bool) {
	switch resolution {
	case "PT60M", "PT1H":
		return time.Hour, true
	case "PT30M":
		return 30 * time.Minute, true
	case "PT15M":
		return 15 * time.Minute, true
	default:
		return time.Hour, false
	}
}

// DecodePublicationMarketDocument decodes the XML response body.
func DecodePublicationMarketDocument(r io.Reader) (*PublicationMarketDocument, error) {
	var doc PublicationMarketDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error parsing XML: %w", err)
	}
	return &doc, nil
}
