package wire

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMalformedLinesReturnUnknown(t *testing.T) {
	lines := []string{
		"",
		"MSG",
		"MSG ",
		"MSG    ",
		"SET auth t=admin p=secret",
		"msg badp=0",
		"MSG stats_cb",
		"MSG stats_cb=",
		"MSG stats_cb={\"ct\":12",
		"MSG user_cb=[{\"i\":0,",
		"MSG load_cfg={\"rx_name\":",
		"MSG load_adm=%7B%22port%22",
		"MSG gps_update_cb=%7B%22ch%22%3A%5B",
		"MSG =value",
		"MSG {\"x\":1}",
		"MSG bad\x01name=1",
		"\x00\x00\x00",
	}

	for _, line := range lines {
		var msg Message
		require.NotPanics(t, func() { msg = Parse(line) }, "line %q", line)
		assert.Equal(t, KindUnknown, msg.Kind, "line %q", line)
		assert.Error(t, msg.Err, "line %q", line)
	}
}

func TestParseStatusLine(t *testing.T) {
	msg := Parse("MSG version_maj=1 version_min=550 debian_ver=11")
	require.Equal(t, KindStatus, msg.Kind)
	require.NoError(t, msg.Err)
	assert.Equal(t, "version_maj", msg.Name)
	require.Len(t, msg.Pairs, 3)

	v, ok := msg.Lookup("version_min")
	assert.True(t, ok)
	assert.Equal(t, "550", v)

	_, ok = msg.Lookup("missing")
	assert.False(t, ok)
}

func TestParseBareTokenStatus(t *testing.T) {
	msg := Parse("MSG cfg_loaded")
	require.Equal(t, KindStatus, msg.Kind)
	assert.Equal(t, NameConfigLoaded, msg.Name)
	v, ok := msg.Lookup(NameConfigLoaded)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestParseAuthResult(t *testing.T) {
	msg := Parse("MSG badp=0\n")
	require.Equal(t, KindStatus, msg.Kind)
	v, _ := msg.Lookup(NameAuthResult)
	assert.Equal(t, AuthResultAccepted, v)
}

func TestParseFamilies(t *testing.T) {
	cfg := url.PathEscape(`{"rx_name":"Test","WSPR":{"callsign":"N0CALL"}}`)

	tests := []struct {
		name string
		line string
		kind Kind
		fam  string
	}{
		{name: "main config url encoded", line: "MSG load_cfg=" + cfg, kind: KindConfig, fam: NameMainConfig},
		{name: "legacy config", line: `MSG cfg={"rx_name":"x"}`, kind: KindConfig, fam: NameLegacyConfig},
		{name: "admin config", line: `MSG load_adm={"port":8073}`, kind: KindConfig, fam: NameAdminConfig},
		{name: "identity", line: `MSG config_cb={"m":"6a:8c:58:18:61:f0","s":24120097}`, kind: KindConfig, fam: NameIdentity},
		{name: "stats", line: `MSG stats_cb={"ct":100,"cc":48.5}`, kind: KindSnapshot, fam: NameStats},
		{name: "users", line: `MSG user_cb=[{"i":0,"e":"FT8","a":"127.0.0.1"}]`, kind: KindSnapshot, fam: NameUsers},
		{name: "satellites", line: "MSG gps_update_cb=" + url.PathEscape(`{"ch":[{"ch":0,"prn":5}]}`), kind: KindSnapshot, fam: NameSatellites},
		{name: "position", line: `MSG gps_POS_data_cb={"ref_lat":1.5,"ref_lon":2.5}`, kind: KindSnapshot, fam: NamePosition},
		{name: "key value config", line: "MSG load_cfg=rx_name=Shack&rx_asl=120", kind: KindConfig, fam: NameMainConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := Parse(tc.line)
			require.NoError(t, msg.Err)
			assert.Equal(t, tc.kind, msg.Kind)
			assert.Equal(t, tc.fam, msg.Name)
			assert.NotNil(t, msg.Doc)
		})
	}
}

func TestParseUserBlockKeepsEncodedStatus(t *testing.T) {
	msg := Parse(`MSG user_cb=[{"i":3,"g":"410%20decoded%2C%20preemptible"}]`)
	require.Equal(t, KindSnapshot, msg.Kind)

	arr := Array(msg.Doc)
	require.Len(t, arr, 1)
	assert.Equal(t, 3, Int(Object(arr[0])["i"]))
	assert.Equal(t, "410%20decoded%2C%20preemptible", String(Object(arr[0])["g"]))
}

func TestAccessorsDegradeToDefaults(t *testing.T) {
	doc, err := DecodeDocument(`{"n":"abc","big":1e30,"ok":42,"s":"17","b":1,"flag":"yes","arr":[1,"x",3.9],"neg":-3.7}`)
	require.NoError(t, err)
	obj := Object(doc)

	assert.Equal(t, 0, Int(obj["n"]))
	assert.Equal(t, 0, Int(obj["big"]))
	assert.Equal(t, 0, Int(obj["missing"]))
	assert.Equal(t, 42, Int(obj["ok"]))
	assert.Equal(t, 17, Int(obj["s"]))
	assert.Equal(t, -3, Int(obj["neg"]))
	assert.True(t, Bool(obj["b"]))
	assert.True(t, Bool(obj["flag"]))
	assert.False(t, Bool(obj["n"]))
	assert.Equal(t, []int{1, 0, 3}, Ints(obj["arr"]))
	assert.Equal(t, "", String(obj["arr"]))
	assert.Equal(t, "42", String(obj["ok"]))
	assert.Equal(t, 0.0, Float(obj["n"]))
}

func TestLookupDottedPath(t *testing.T) {
	doc, err := DecodeDocument(`{"ip_address":{"ip":"10.0.0.2","use_static":true}}`)
	require.NoError(t, err)

	v, ok := Lookup(Object(doc), "ip_address.ip")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", String(v))

	_, ok = Lookup(Object(doc), "ip_address.ip.deeper")
	assert.False(t, ok)
	_, ok = Lookup(Object(doc), "nope")
	assert.False(t, ok)
}
