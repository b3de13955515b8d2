package importer_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/importer"
)

// =============================================================================
// OFX TESTS
// =============================================================================

const sgmlStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
ENCODING:USASCII

<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<CURDEF>BRL
<BANKTRANLIST>
<DTSTART>20240101
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[-3:BRT]
<TRNAMT>-45.90
<FITID>abc1
<NAME>SUPERMARKET &amp; CO
<MEMO>card 1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240110
<TRNAMT>3500,00
<FITID>abc2
<MEMO>SALARY
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240112
<TRNAMT>-12.5
<NAME>PHARMACY
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

const xmlStatement = `<?xml version="1.0" encoding="UTF-8"?>
<?OFX OFXHEADER="200" VERSION="211"?>
<OFX>
  <BANKMSGSRSV1>
    <STMTTRNRS>
      <STMTRS>
        <BANKTRANLIST>
          <STMTTRN>
            <TRNTYPE>DEBIT</TRNTYPE>
            <DTPOSTED>20240302</DTPOSTED>
            <TRNAMT>-99.99</TRNAMT>
            <FITID>x-1</FITID>
            <NAME>Internet</NAME>
          </STMTTRN>
        </BANKTRANLIST>
      </STMTRS>
    </STMTTRNRS>
  </BANKMSGSRSV1>
</OFX>
`

func TestOFXParser_SGML(t *testing.T) {
	// GIVEN: An OFX 1.x statement with unclosed leaf tags
	// WHEN: Parsing it
	// THEN: Every STMTTRN becomes a candidate

	got, err := (&importer.OFXParser{}).Parse(strings.NewReader(sgmlStatement))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, engine.NewDate(2024, time.January, 5), got[0].Date)
	assert.Equal(t, "-45.9", got[0].Amount.String())
	assert.Equal(t, "SUPERMARKET & CO card 1234", got[0].Description)
	assert.Equal(t, "abc1", got[0].ExternalID)
	assert.Equal(t, engine.Outflow, got[0].Direction())

	assert.Equal(t, "3500", got[1].Amount.String(), "comma decimal separator")
	assert.Equal(t, "SALARY", got[1].Description, "memo stands in for a missing name")
	assert.Equal(t, engine.Inflow, got[1].Direction())

	assert.Equal(t, "ofx_20240112_PHARMACY_-12.50", got[2].ExternalID, "lines without FITID get a stable reference")
}

func TestOFXParser_XML(t *testing.T) {
	got, err := (&importer.OFXParser{}).Parse(strings.NewReader(xmlStatement))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, engine.NewDate(2024, time.March, 2), got[0].Date)
	assert.Equal(t, "-99.99", got[0].Amount.String())
	assert.Equal(t, "Internet", got[0].Description)
	assert.Equal(t, "x-1", got[0].ExternalID)
}

func TestOFXParser_Errors(t *testing.T) {
	_, err := (&importer.OFXParser{}).Parse(strings.NewReader("not a statement"))
	assert.Error(t, err)

	bad := strings.Replace(xmlStatement, "<TRNAMT>-99.99</TRNAMT>", "<TRNAMT>lots</TRNAMT>", 1)
	_, err = (&importer.OFXParser{}).Parse(strings.NewReader(bad))
	assert.ErrorContains(t, err, "transaction 1")
}

// =============================================================================
// CSV TESTS
// =============================================================================

func TestCSVParser(t *testing.T) {
	input := "Date, Description, Amount, Id\n" +
		"2024-01-05,Supermarket,-45.90,ln-1\n" +
		"05/01/2024,Salary,\"3500,00\",\n"

	got, err := (&importer.CSVParser{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, engine.NewDate(2024, time.January, 5), got[0].Date)
	assert.Equal(t, "ln-1", got[0].ExternalID)
	assert.Equal(t, engine.Outflow, got[0].Direction())

	assert.Equal(t, engine.NewDate(2024, time.January, 5), got[1].Date, "day-first dates")
	assert.Equal(t, "3500", got[1].Amount.String())
	assert.Equal(t, "csv_20240105_SALARY_3500.00", got[1].ExternalID)
}

func TestCSVParser_IdenticalLinesGetOrdinals(t *testing.T) {
	// GIVEN: Two identical unnumbered coffees on the same day
	// THEN: Each gets its own reference, numbered by position

	input := "date,description,amount\n" +
		"2024-01-05,Coffee,-4.50\n" +
		"2024-01-05,Coffee,-4.50\n" +
		"2024-01-06,Coffee,-4.50\n"

	got, err := (&importer.CSVParser{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "csv_20240105_COFFEE_-4.50", got[0].ExternalID)
	assert.Equal(t, "csv_20240105_COFFEE_-4.50_2", got[1].ExternalID)
	assert.Equal(t, "csv_20240106_COFFEE_-4.50", got[2].ExternalID)

	again, err := (&importer.CSVParser{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, got, again, "references are stable across parses")
}

func TestCSVParser_HeaderAliases(t *testing.T) {
	input := "data,descricao,valor\n2024/02/10,Padaria,-8.50\n"
	got, err := (&importer.CSVParser{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Padaria", got[0].Description)
}

func TestCSVParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing amount column", "date,description\n2024-01-01,x\n", "missing amount column"},
		{"bad date", "date,description,amount\nyesterday,x,1\n", "row 2"},
		{"bad amount", "date,description,amount\n2024-01-01,x,abc\n", "parsing amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&importer.CSVParser{}).Parse(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCSVParser_HeaderOnly(t *testing.T) {
	got, err := (&importer.CSVParser{}).Parse(strings.NewReader("date,description,amount\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestDefaultRegistry(t *testing.T) {
	r := importer.DefaultRegistry()

	assert.Equal(t, []string{"csv", "ofx"}, r.Formats())
	assert.NotNil(t, r.Get("OFX"), "lookup is case-insensitive")

	_, err := r.Parse("qif", strings.NewReader(""))
	assert.True(t, errors.Is(err, engine.ErrValidation))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := importer.NewRegistry()
	r.Register(&importer.CSVParser{})
	assert.Panics(t, func() { r.Register(&importer.CSVParser{}) })
}
