// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fanout

import (
	"regexp"
	"strings"
)

// Tables holds the static reference data the classifier consults. It is
// built once and never mutated.
type Tables struct {
	// PreprintPrefixes maps DOI registrant prefixes of platforms that host
	// preprints, postprints or repository copies to the names they are
	// registered under.
	PreprintPrefixes map[string][]string

	// PreprintClues are DOI suffix beginnings that identify a preprint
	// server.
	PreprintClues []string

	// EditorialTypes are OpenAlex work types that mark a companion record
	// of an article (errata, letters, editorials).
	EditorialTypes map[string]bool

	// PreprintVersions are primary_location.version values of a copy that
	// is not the version of record.
	PreprintVersions map[string]bool

	// VersionPattern matches DOIs that carry a version suffix.
	VersionPattern *regexp.Regexp
}

// DefaultTables returns the reference data used in production.
func DefaultTables() *Tables {
	return &Tables{
		PreprintPrefixes: defaultPreprintPrefixes(),
		PreprintClues: []string{
			"/agrirxiv",
			"/arphapreprints",
			"/arxiv",
			"/au.",
			"/chemrxiv",
			"/essoar",
			"/f1000research",
			"/gatesopenres",
			"/healthopenres /amrcopenres",
			"/hrbopenres",
			"/indiarxiv",
			"/jxiv",
			"/mitofit:",
			"/mniopenres",
			"/openresafrica",
			"/osf.io",
			"/peerj.preprints",
			"/preprints",
			"/rs.",
			"/scielopreprints",
			"/wellcomeopenres",
			"/zenodo",
			"/srxiv.",
		},
		EditorialTypes: map[string]bool{
			"other":       true,
			"peer-review": true,
			"editorial":   true,
			"erratum":     true,
			"letter":      true,
		},
		PreprintVersions: map[string]bool{
			"submittedVersion": true,
			"acceptedVersion":  true,
		},
		VersionPattern: regexp.MustCompile(`(?:[./]v\d{1,2}[./])|(?:[./]v\d{1,2}$)|(?:/\d{1,2}$)|(?:[^a-zA-Z]v\d{1,2}$)`),
	}
}

// IsPreprintPrefix reports whether prefix belongs to a preprint-hosting
// platform.
func (t *Tables) IsPreprintPrefix(prefix string) bool {
	_, ok := t.PreprintPrefixes[prefix]
	return ok
}

// HasPreprintClue reports whether a DOI suffix (leading slash included)
// starts with one of the preprint-server clues.
func (t *Tables) HasPreprintClue(suffix string) bool {
	for _, c := range t.PreprintClues {
		if strings.HasPrefix(suffix, c) {
			return true
		}
	}
	return false
}

// IsVersioned reports whether doi carries a version marker.
func (t *Tables) IsVersioned(doi string) bool {
	return t.VersionPattern.MatchString(doi)
}

func defaultPreprintPrefixes() map[string][]string {
	return map[string][]string{
		"10.1002":  {"Open Anthropology Research Repository", "Earth and Space Science Open Archive", "Wiley"},
		"10.1097":  {"Lippincott® Preprints", "Ovid Technologies (Wolters Kluwer Health)"},
		"10.1099":  {"Microbiology Society"},
		"10.1101":  {"bioRxiv", "medRxiv", "Cold Spring Harbor Laboratory"},
		"10.1130":  {"Geological Society of America"},
		"10.1149":  {"The Electrochemical Society"},
		"10.1158":  {"American Association for Cancer Research", "American Association for Cancer Research (AACR)"},
		"10.12788": {"Frontline Medical Communications, Inc."},
		"10.13031": {"American Society of Agricultural and Biological Engineers", "American Society of Agricultural and Biological Engineers", "(ASABE)"},
		"10.1364":  {"Optica Open", "Optica Publishing Group"},
		"10.14434": {"Indiana University", "IUScholarWorks"},
		"10.1484":  {"Brepols", "Brepols Publishers NV"},
		"10.15329": {"Federacao Brasileira de Psicodrama"},
		"10.17077": {"University of Iowa", "The University of Iowa"},
		"10.20378": {"Universitatsbibliothek Bamberg"},
		"10.20944": {"MDPI AG"},
		"10.21034": {"Federal Reserve Bank of Minneapolis"},
		"10.21072": {"IMBR RAS"},
		"10.21203": {"Research Square", "Research Square Platform LLC"},
		"10.21428": {"PubPub"},
		"10.21467": {"AIJR Publisher"},
		"10.21504": {"Rhodes University"},
		"10.2196":  {"JMIR Publications Inc."},
		"10.2337":  {"American Diabetes Association"},
		"10.24108": {"NPG Publishing"},
		"10.24296": {"JOMI, LLC"},
		"10.26434": {"American Chemical Society (ACS)"},
		"10.26686": {"Open Access Victoria University of Wellington | Te Herenga Waka", "Open Access Te Herenga Waka-Victoria University of Wellington", "Victoria University of Wellington Library"},
		"10.26761": {"International Journal of Research in Library Science"},
		"10.31124": {"Advance", "SAGE Publications"},
		"10.31219": {"Center for Open Science"},
		"10.31220": {"CABI Publishing"},
		"10.31221": {"Center for Open Science"},
		"10.31222": {"Center for Open Science"},
		"10.31223": {"California Digital Library (CDL)"},
		"10.31224": {"Open Engineering Inc"},
		"10.31225": {"Center for Open Science"},
		"10.31226": {"Center for Open Science"},
		"10.31227": {"Center for Open Science"},
		"10.31228": {"Center for Open Science"},
		"10.31229": {"Center for Open Science"},
		"10.31230": {"Center for Open Science"},
		"10.31231": {"Center for Open Science"},
		"10.31232": {"Center for Open Science"},
		"10.31233": {"Center for Open Science"},
		"10.31234": {"Center for Open Science"},
		"10.31235": {"Center for Open Science"},
		"10.31236": {"Center for Open Science"},
		"10.31237": {"Center for Open Science"},
		"10.31730": {"Center for Open Science"},
		"10.31923": {"PoolText, Inc"},
		"10.32920": {"Toronto Metropolitan University", "Ryerson University", "Ryerson University Library and Archives"},
		"10.32942": {"California Digital Library (CDL)"},
		"10.33767": {"Center for Open Science"},
		"10.33774": {"Cambridge University Press (CUP)"},
		"10.34055": {"Center for Open Science"},
		"10.35542": {"Center for Open Science"},
		"10.35543": {"Open Access India"},
		"10.36227": {"TechRxiv", "Institute of Electrical and Electronics Engineers (IEEE)"},
		"10.37281": {"Genesis Sustainable Future Ltd."},
		"10.3762":  {"Beilstein Institut"},
		"10.38140": {"University of the Free State"},
		"10.3897":  {"ARPHA Preprints", "Pensoft Publishers"},
		"10.46715": {"SkepticMed Publishers"},
		"10.47340": {"Millennium Journals"},
		"10.47649": {"Kh.Dosmukhamedov Atyrau University"},
		"10.48199": {"Journal of Urban Planning and Architecture"},
		"10.5117":  {"Amsterdam University Press"},
		"10.51767": {"The Bhopal School of Social Sciences"},
		"10.5194":  {"Copernicus GmbH"},
		"10.53731": {"Front Matter", "Syldavia Gazette"},
		"10.5772":  {"IntechOpen"},
		"10.6028":  {"National Institute of Standards and Technology (NIST)"},
		"10.7554":  {"eLife Sciences Publications, Ltd"},
		"10.17615": {"Carolina Digital Repository", "University of North Carolina at Chapel Hill"},
		"10.6084":  {"Figshare"},
		"10.22541": {"Authorea"},
		"10.5281":  {"Zenodo"},
		"10.17605": {"Center for Open Science", "OSF"},
		"10.48550": {"arXiv"},
	}
}
