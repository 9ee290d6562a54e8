package benchmarks_test

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	fc "github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue/r4core"
	"github.com/reoring/fhircodec/source/gojson"
	"github.com/reoring/fhircodec/source/jsoniter"
)

// --- Fixtures ---

func observationJSON(first bool) []byte {
	body := `"id":"o1","status":"final","code":{"coding":[{"system":"http://loinc.org","code":"8867-4"}]},` +
		`"valueQuantity":{"value":72,"unit":"beats/min"},"component":[` +
		`{"code":{"text":"a"},"valueString":"x"},{"code":{"text":"b"},"valueInteger":3}]`
	if first {
		return []byte(`{"resourceType":"Observation",` + body + `}`)
	}
	return []byte(`{` + body + `,"resourceType":"Observation"}`)
}

func bundleJSON(n int) []byte {
	var b strings.Builder
	b.WriteString(`{"resourceType":"Bundle","type":"collection","entry":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"resource":{"id":"p`)
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`","active":true,"name":[{"family":"Doe","given":["J"]}],"resourceType":"Patient"}}`)
	}
	b.WriteString(`]}`)
	return []byte(b.String())
}

func codecFor(tb testing.TB, drv fc.JSONDriver) *fc.Codec {
	tb.Helper()
	c, err := fc.NewCodec(r4core.MustCatalogue(), fc.Options{Driver: drv})
	if err != nil {
		tb.Fatalf("codec: %v", err)
	}
	return c
}

var drivers = []struct {
	name string
	drv  fc.JSONDriver
}{
	{"stdlib", fc.StdlibDriver()},
	{"gojson", gojson.Driver()},
	{"jsoniter", jsoniter.Driver()},
}

// --- Decode ---

func Benchmark_Unmarshal_Observation(b *testing.B) {
	for _, d := range drivers {
		for _, first := range []bool{true, false} {
			name := d.name + "/late"
			if first {
				name = d.name + "/first"
			}
			b.Run(name, func(b *testing.B) {
				ctx := context.Background()
				c := codecFor(b, d.drv)
				data := observationJSON(first)
				b.ReportAllocs()
				b.SetBytes(int64(len(data)))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := c.Unmarshal(ctx, data, nil); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func Benchmark_Decode_Bundle_Large(b *testing.B) {
	data := bundleJSON(500)
	for _, d := range drivers {
		b.Run(d.name, func(b *testing.B) {
			ctx := context.Background()
			c := codecFor(b, d.drv)
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Decode(ctx, bytes.NewReader(data), nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// --- Encode ---

func Benchmark_Marshal_Bundle(b *testing.B) {
	ctx := context.Background()
	c := codecFor(b, nil)
	data := bundleJSON(100)
	rec, err := c.Unmarshal(ctx, data, nil)
	if err != nil {
		b.Fatalf("unmarshal: %v", err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Marshal(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}
