package tapo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

const sessionCookieName = "TP_SESSIONID"

type deviceAddresses struct {
	ip      string   // x.x.x.x
	baseUrl string   // http://x.x.x.x:80
	appUrl  *url.URL // http://x.x.x.x:80/app
}

// transport is the HTTP plumbing shared by both session protocols.
type transport struct {
	addresses deviceAddresses
	client    *http.Client // A long-lived HTTP client that also retains the HTTP session state (e.g. cookies)
}

//goland:noinspection HttpUrlsUsage
func newTransport(deviceIp string, port uint16, timeout time.Duration) (*transport, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("could not create new cookie jar whilst initialising %s: %w", deviceIp, err)
	}
	tr := &http.Transport{
		DisableKeepAlives:      false,
		DisableCompression:     false,
		MaxIdleConnsPerHost:    1,
		MaxConnsPerHost:        1,
		IdleConnTimeout:        5 * time.Minute,
		ResponseHeaderTimeout:  timeout,
		MaxResponseHeaderBytes: 4096,
		ForceAttemptHTTP2:      false,
	}
	baseUrl := "http://" + deviceIp + ":" + strconv.FormatUint(uint64(port), 10)
	appUrl, err := url.Parse(baseUrl + "/app")
	if err != nil {
		return nil, fmt.Errorf("could not parse '%s' as a URL object: %w", baseUrl, err)
	}
	return &transport{
		addresses: deviceAddresses{
			ip:      deviceIp,
			baseUrl: baseUrl,
			appUrl:  appUrl,
		},
		client: &http.Client{
			Transport: tr,
			Jar:       jar,
			Timeout:   timeout,
		},
	}, nil
}

func (t *transport) applyHeadersTo(request *http.Request) {
	request.Header.Set("Referer", t.addresses.baseUrl)
	request.Header.Set("requestByApp", "true")
	request.Header.Set("Content-Type", "application/json; charset=UTF-8")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Connection", "Keep-Alive")
	request.Header.Set("User-Agent", "okhttp/3.12.13")
}

func (t *transport) post(ctx context.Context, target string, body []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not build request for %s: %w", target, err)
	}
	t.applyHeadersTo(request)

	response, err := t.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(response.Body)
	if response.StatusCode != http.StatusOK {
		return nil, errors.New("expected status code 200, got " + strconv.Itoa(response.StatusCode))
	}
	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body from %s: %w", target, err)
	}
	return responseBody, nil
}

func (t *transport) hasValidSessionCookie() bool {
	for _, cookie := range t.client.Jar.Cookies(t.addresses.appUrl) {
		if cookie.Name == sessionCookieName {
			if cookie.Expires.Year() < 1601 { // has no expiry
				return true
			}
			return cookie.Expires.After(time.Now())
		}
	}
	return false
}

func (t *transport) forgetSession() {
	t.client.CloseIdleConnections()
	// KLAP devices scope the cookie to /app, passthrough devices to /
	t.client.Jar.SetCookies(t.addresses.appUrl, []*http.Cookie{
		{Name: sessionCookieName, Path: "/", MaxAge: -1},
		{Name: sessionCookieName, Path: "/app", MaxAge: -1},
	})
}
