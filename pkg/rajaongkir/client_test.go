package rajaongkir

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
)

func TestClientCostRequest(t *testing.T) {
	const expectedURL = "http://ongkir.test/api/cost"
	respBody := `{"rajaongkir":{"status":{"code":200,"description":"OK"},"results":[
		{"code":"JNE","costs":[
			{"service":"REG","description":"Layanan Reguler","cost":[{"value":15000,"etd":"2-3"}]},
			{"service":"YES","description":"Yakin Esok Sampai","cost":[{"value":28000,"etd":"1"}]},
			{"service":"EMPTY","cost":[]}
		]},
		{"code":"pos","costs":[{"service":"Kilat","cost":[{"value":12000,"etd":"4"}]}]}
	]}}`

	var capturedURL string
	var capturedHeaders http.Header
	var capturedForm url.Values

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		capturedForm, err = url.ParseQuery(string(body))
		if err != nil {
			t.Fatalf("parse form: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-key", WithBaseURL("http://ongkir.test/api/"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	costs, err := client.Cost(context.Background(), CostRequest{
		Origin:      "151",
		Destination: "153",
		WeightGrams: 1700,
		Couriers:    []string{"jne", "pos"},
	})
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("key") != "test-key" {
		t.Fatalf("api key header missing")
	}
	if capturedForm.Get("courier") != "jne:pos" || capturedForm.Get("weight") != "1700" {
		t.Fatalf("unexpected form %v", capturedForm)
	}
	if len(costs) != 3 {
		t.Fatalf("expected 3 priced services, got %+v", costs)
	}
	if costs[0].Courier != "jne" || costs[0].Service != "REG" || costs[0].Cost != 15000 || costs[0].ETD != "2-3" {
		t.Fatalf("unexpected first service %+v", costs[0])
	}
}

func TestClientCostErrors(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"rajaongkir":{"status":{"code":400,"description":"Invalid key"}}}`)),
			Header:     http.Header{},
		}, nil
	})
	client, err := NewClient("test-key", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Cost(context.Background(), CostRequest{Origin: "1", Destination: "2", WeightGrams: 1, Couriers: []string{"jne"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	_, err = client.Cost(context.Background(), CostRequest{Origin: "1", WeightGrams: 1, Couriers: []string{"jne"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := NewClient(" "); err == nil {
		t.Fatalf("expected missing key error")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
