package healthgov

import (
	"bytes"
	"context"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/snapshot"
	_ "embed"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/legacy_page.html
var legacyPage []byte

func sydney(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func parse(t testing.TB, page string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(page))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestClientPage(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("user-agent")
		if r.URL.Path != "/case-numbers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("content-type", "text/html")
		w.Write(legacyPage)
	}))
	defer srv.Close()

	tel := &telemetry.Recorder{}
	client, err := NewClient(srv.URL+"/case-numbers", "", tel)
	if err != nil {
		t.Fatal(err)
	}

	page, err := client.Page(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, legacyPage, page)
	require.Equal(t, DefaultUserAgent, userAgent)

	missing, err := NewClient(srv.URL+"/gone", "custom-agent", tel)
	if err != nil {
		t.Fatal(err)
	}
	_, err = missing.Page(context.Background())
	require.Error(t, err)
	require.Equal(t, "custom-agent", userAgent)
	require.True(t, tel.Has(telemetry.LevelBroken, report_client_page))
}

func TestGraphIDs(t *testing.T) {
	ids, err := GraphIDs(legacyPage)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"KdmpZ", "zfDpnUy", "gjjZnj", "PSWhPA", "uJauhW", "GJSFMHS", "SfYPx", "aVJJAHx"}, ids)

	_, err = GraphIDs([]byte(`<html><body>no dashboard</body></html>`))
	require.ErrorIs(t, err, ErrNoGraphIDs)

	_, err = GraphIDs([]byte(`{"qlik_components":[]}`))
	require.ErrorIs(t, err, ErrNoGraphIDs)
}

func TestPublicationDate(t *testing.T) {
	loc := sydney(t)

	cases := []struct {
		name   string
		page   string
		expect snapshot.Date
	}{
		{
			name:   "legacy text",
			page:   string(legacyPage),
			expect: snapshot.Date{Year: 2020, Month: time.November, Day: 3},
		},
		{
			name:   "content attribute",
			page:   `<span class="date-display-single" content="2021-08-10T09:00:00+10:00">9am 10 August 2021</span>`,
			expect: snapshot.Date{Year: 2021, Month: time.August, Day: 10},
		},
		{
			name: "content attribute in another zone",
			// 23:30 UTC is the next morning in Sydney
			page:   `<span class="date-display-single" content="2021-08-09T23:30:00Z"></span>`,
			expect: snapshot.Date{Year: 2021, Month: time.August, Day: 10},
		},
		{
			name:   "text with weekday",
			page:   `<span class="date-display-single">Tuesday 10 August 2021</span>`,
			expect: snapshot.Date{Year: 2021, Month: time.August, Day: 10},
		},
		{
			name:   "bad content attribute",
			page:   `<span class="date-display-single" content="soon">As at 10 August 2021 3:00pm</span>`,
			expect: snapshot.Date{Year: 2021, Month: time.August, Day: 10},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			date, err := PublicationDate(parse(t, test.page), loc)
			if err != nil {
				t.Fatal(err)
			}
			require.Equal(t, test.expect, date)
		})
	}

	_, err := PublicationDate(parse(t, `<span class="date-display-single">sometime</span>`), loc)
	require.ErrorIs(t, err, ErrNoPublicationDate)
	_, err = PublicationDate(parse(t, `<p>nothing</p>`), loc)
	require.ErrorIs(t, err, ErrNoPublicationDate)
}
