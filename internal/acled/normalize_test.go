package acled

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ValidRow(t *testing.T) {
	res, err := Normalize(exportHeader, [][]string{sampleRow(nil)})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Read)
	assert.Equal(t, 0, res.Excluded.Rows)

	ev := res.Events[0]
	assert.Equal(t, "FRA37186", ev.ExternalID)
	assert.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), ev.OccurredOn)
	assert.Equal(t, "Protests", ev.Type)
	assert.Equal(t, "Peaceful protest", ev.SubType)
	assert.Equal(t, "Demonstrations", ev.DisorderType)
	assert.Equal(t, 250, ev.CountryCode)
	assert.InDelta(t, 49.3165, ev.Latitude, 1e-9)
	assert.InDelta(t, 1.6123, ev.Longitude, 1e-9)
	assert.Equal(t, 1, ev.GeoPrecision)
	assert.Equal(t, 0, ev.Fatalities)
	assert.False(t, ev.CivilianTargeting)
	assert.Equal(t, int64(1734567890), ev.Timestamp)
	require.NotNil(t, ev.Admin2)
	assert.Equal(t, "Eure", *ev.Admin2)
	require.NotNil(t, ev.Tags)
	assert.Equal(t, "crowd size=around 50", *ev.Tags)
}

func TestNormalize_NullableFields(t *testing.T) {
	res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{
		"actor2":        "",
		"inter2":        "",
		"assoc_actor_1": "  ",
		"assoc_actor_2": "",
		"admin2":        "",
		"admin3":        "",
		"tags":          "",
	})})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Nil(t, ev.Actor2)
	assert.Nil(t, ev.Inter2)
	assert.Nil(t, ev.AssocActor1)
	assert.Nil(t, ev.AssocActor2)
	assert.Nil(t, ev.Admin2)
	assert.Nil(t, ev.Admin3)
	assert.Nil(t, ev.Tags)
}

func TestNormalize_NonNullableTextStaysEmptyString(t *testing.T) {
	res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{"notes": ""})})
	require.NoError(t, err)
	assert.Equal(t, "", res.Events[0].Notes)
}

func TestNormalize_CivilianTargeting(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"Civilian targeting", true},
		{"x", true},
		{"", false},
		{"   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{"civilian_targeting": tt.value})})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Events[0].CivilianTargeting)
		})
	}
}

func TestNormalize_Fatalities(t *testing.T) {
	res, err := Normalize(exportHeader, [][]string{
		sampleRow(map[string]string{"fatalities": ""}),
		sampleRow(map[string]string{"fatalities": "12"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Events[0].Fatalities)
	assert.Equal(t, 12, res.Events[1].Fatalities)
}

func TestNormalize_FatalCoercionErrors(t *testing.T) {
	tests := []struct {
		column   string
		value    string
		canonCol string
	}{
		{"event_date", "15/12/2024", ColDate},
		{"event_date", "", ColDate},
		{"iso", "FRA", ColCountryCode},
		{"latitude", "north", ColLatitude},
		{"longitude", "", ColLongitude},
		{"geo_precision", "high", ColGeoPrecision},
		{"timestamp", "yesterday", ColTimestamp},
		{"fatalities", "many", ColFatalities},
		{"fatalities", "-3", ColFatalities},
	}
	for _, tt := range tests {
		t.Run(tt.column+"="+tt.value, func(t *testing.T) {
			rows := [][]string{
				sampleRow(nil),
				sampleRow(map[string]string{tt.column: tt.value}),
			}
			res, err := Normalize(exportHeader, rows)
			require.Error(t, err)
			assert.Nil(t, res)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 2, pe.Row)
			assert.Equal(t, tt.canonCol, pe.Column)
			assert.Equal(t, tt.value, pe.Value)
		})
	}
}

func TestNormalize_CoordinateDomain(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		kept     bool
	}{
		{"lat 95 excluded", "95", "10", false},
		{"lat -90 boundary kept", "-90", "10", true},
		{"lat 90 boundary kept", "90", "10", true},
		{"lat -90.0001 excluded", "-90.0001", "10", false},
		{"lon 180 boundary kept", "10", "180", true},
		{"lon -180 boundary kept", "10", "-180", true},
		{"lon 181 excluded", "10", "181", false},
		{"NaN excluded", "NaN", "10", false},
		{"Inf excluded", "10", "+Inf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{"latitude": tt.lat, "longitude": tt.lon})})
			require.NoError(t, err)
			if tt.kept {
				assert.Len(t, res.Events, 1)
				assert.Equal(t, 0, res.Excluded.ByReason[ReasonInvalidCoordinates])
			} else {
				assert.Empty(t, res.Events)
				assert.Equal(t, 1, res.Excluded.ByReason[ReasonInvalidCoordinates])
			}
		})
	}
}

func TestNormalize_PrecisionDomain(t *testing.T) {
	for _, p := range []string{"1", "2", "3"} {
		res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{"geo_precision": p})})
		require.NoError(t, err)
		assert.Len(t, res.Events, 1, "precision %s", p)
	}
	for _, p := range []string{"0", "4", "-1"} {
		res, err := Normalize(exportHeader, [][]string{sampleRow(map[string]string{"geo_precision": p})})
		require.NoError(t, err)
		assert.Empty(t, res.Events, "precision %s", p)
		assert.Equal(t, 1, res.Excluded.ByReason[ReasonInvalidPrecision])
	}
}

func TestNormalize_ExclusionCountsAreIndependent(t *testing.T) {
	rows := [][]string{
		sampleRow(map[string]string{"event_id_cnty": "A"}),
		sampleRow(map[string]string{"event_id_cnty": "B", "latitude": "95"}),
		sampleRow(map[string]string{"event_id_cnty": "C", "geo_precision": "4"}),
		sampleRow(map[string]string{"event_id_cnty": "D", "latitude": "95", "geo_precision": "4"}),
		sampleRow(map[string]string{"event_id_cnty": "E"}),
	}
	res, err := Normalize(exportHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Read)
	assert.Equal(t, 2, res.Excluded.ByReason[ReasonInvalidCoordinates])
	assert.Equal(t, 2, res.Excluded.ByReason[ReasonInvalidPrecision])
	assert.Equal(t, 4, res.Excluded.Total())
	assert.Equal(t, 3, res.Excluded.Rows)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "A", res.Events[0].ExternalID)
	assert.Equal(t, "E", res.Events[1].ExternalID)
}

func TestNormalize_MissingRequiredColumn(t *testing.T) {
	header := append([]string(nil), exportHeader[:len(exportHeader)-1]...)
	row := sampleRow(nil)[:len(exportHeader)-1]

	_, err := Normalize(header, [][]string{row})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns: timestamp")
}

func TestNormalize_UnknownColumnsIgnored(t *testing.T) {
	header := append([]string{"population_best"}, exportHeader...)
	row := append([]string{"1200"}, sampleRow(nil)...)

	res, err := Normalize(header, [][]string{row})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "FRA37186", res.Events[0].ExternalID)
}

func TestNormalize_ShortRowPadsWithEmpty(t *testing.T) {
	// Trailing tags, civilian_targeting and timestamp missing: timestamp is required.
	row := sampleRow(nil)[:len(exportHeader)-3]
	_, err := Normalize(exportHeader, [][]string{row})

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ColTimestamp, pe.Column)
}

func TestNormalize_Empty(t *testing.T) {
	res, err := Normalize(exportHeader, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Read)
	assert.Empty(t, res.Events)
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Row: 3, Column: "date", Value: "x", Err: errors.New("bad")}
	assert.Equal(t, `acled: row 3: column date: cannot parse "x": bad`, err.Error())
	assert.Equal(t, "bad", errors.Unwrap(err).Error())
}
