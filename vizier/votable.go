package vizier

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/tfkr-ae/azimuth/domain"
)

// Parse decodes a votable payload into reference stars, letting a refit
// replay a catalog response archived by an earlier run.
func Parse(data []byte) ([]*domain.ReferenceStar, error) {
	return parseVOTable(data)
}

// parseVOTable decodes the TABLEDATA section of a votable response into
// reference stars. Field order is taken from the FIELD declarations, empty
// cells become NaN so that downstream quality gates reject them naturally.
func parseVOTable(data []byte) ([]*domain.ReferenceStar, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("reading votable xml : %w", err)
	}

	table := doc.FindElement("//TABLE")
	if table == nil {
		// votables report query errors through INFO elements
		if info := doc.FindElement("//INFO[@name='QUERY_STATUS']"); info != nil {
			return nil, fmt.Errorf("query failed : %s", strings.TrimSpace(info.Text()))
		}
		return nil, nil
	}

	index := make(map[string]int)
	for i, field := range table.FindElements("FIELD") {
		name := field.SelectAttrValue("name", "")
		index[name] = i
	}

	var stars []*domain.ReferenceStar
	for _, tr := range table.FindElements("DATA/TABLEDATA/TR") {
		cells := tr.FindElements("TD")

		get := func(name string) float64 {
			i, ok := index[name]
			if !ok || i >= len(cells) {
				return math.NaN()
			}

			text := strings.TrimSpace(cells[i].Text())
			if text == "" {
				return math.NaN()
			}

			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return math.NaN()
			}
			return value
		}

		star := &domain.ReferenceStar{
			RA:     get("RAJ2000"),
			Dec:    get("DEJ2000"),
			RAErr:  get("e_RAJ2000"),
			DecErr: get("e_DEJ2000"),
			G:      get("gmag"),
			GErr:   get("e_gmag"),
			R:      get("rmag"),
			RErr:   get("e_rmag"),
			I:      get("imag"),
			IErr:   get("e_imag"),
			Z:      get("zmag"),
			ZErr:   get("e_zmag"),
			Y:      get("ymag"),
			YErr:   get("e_ymag"),
		}

		if objID := get("objID"); !math.IsNaN(objID) {
			star.ObjID = int64(objID)
		}

		// an absent quality flag counts as unclean
		star.Qual = 255
		if qual := get("Qual"); !math.IsNaN(qual) {
			star.Qual = int(qual)
		}

		// a star is unusable without a position
		if math.IsNaN(star.RA) || math.IsNaN(star.Dec) {
			continue
		}

		stars = append(stars, star)
	}

	return stars, nil
}
