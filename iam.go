// LICENSE BSD-2-Clause-FreeBSD
// Copyright (c) 2018, Rohan Verma <hello@rohanverma.net>

package s3req

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	imdsTokenHeader        = "X-aws-ec2-metadata-token"
	imdsTokenTTLHeader     = "X-aws-ec2-metadata-token-ttl-seconds"
	metadataBaseURL        = "http://169.254.169.254/latest"
	securityCredentialsURI = "/meta-data/iam/security-credentials/"
	imdsTokenURI           = "/api/token"
	defaultIMDSTokenTTL    = "60"
)

// IAMCredentials holds temporary credentials obtained from the EC2
// instance metadata service.
type IAMCredentials struct {
	Code            string    `json:"Code"`
	LastUpdated     string    `json:"LastUpdated"`
	Type            string    `json:"Type"`
	AccessKeyID     string    `json:"AccessKeyId"`
	SecretAccessKey string    `json:"SecretAccessKey"`
	Token           string    `json:"Token"`
	Expiration      time.Time `json:"Expiration"`
}

// Apply copies the credentials into a bucket context, including the
// security token that signs and ships with every request.
func (c *IAMCredentials) Apply(bc *BucketContext) {
	bc.AccessKeyID = c.AccessKeyID
	bc.SecretAccessKey = c.SecretAccessKey
	bc.SecurityToken = c.Token
}

// Expired reports whether the credentials are past their expiration.
func (c *IAMCredentials) Expired() bool {
	return !c.Expiration.IsZero() && time.Since(c.Expiration) >= 0
}

// fetchIMDSToken retrieves an IMDSv2 token from the EC2 instance
// metadata service. It returns the token and true only if IMDSv2 is
// enabled in the instance metadata configuration.
func fetchIMDSToken(cl *http.Client, baseURL string) (string, bool, error) {
	req, err := http.NewRequest(http.MethodPut, baseURL+imdsTokenURI, nil)
	if err != nil {
		return "", false, err
	}

	// Set the token TTL to 60 seconds.
	req.Header.Set(imdsTokenTTLHeader, defaultIMDSTokenTTL)

	resp, err := cl.Do(req)
	if err != nil {
		return "", false, err
	}

	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", false, errors.Errorf("failed to request IMDSv2 token: %s", resp.Status)
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}

	return string(token), true, nil
}

// FetchIAMCredentials fetches role credentials from the instance
// metadata service. In a normal AWS setup baseURL is the default
// metadata endpoint; pass a custom endpoint for compatible services.
func FetchIAMCredentials(cl *http.Client, baseURL string) (IAMCredentials, error) {
	if baseURL == "" {
		baseURL = metadataBaseURL
	}

	token, useIMDSv2, err := fetchIMDSToken(cl, baseURL)
	if err != nil {
		return IAMCredentials{}, errors.Wrap(err, "fetching IMDSv2 token")
	}

	url := baseURL + securityCredentialsURI

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return IAMCredentials{}, errors.Wrap(err, "creating role list request")
	}
	if useIMDSv2 {
		req.Header.Set(imdsTokenHeader, token)
	}

	resp, err := cl.Do(req)
	if err != nil {
		return IAMCredentials{}, err
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return IAMCredentials{}, errors.Errorf("fetching IAM role: %s", resp.Status)
	}

	role, err := io.ReadAll(resp.Body)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return IAMCredentials{}, err
	}

	req, err = http.NewRequest(http.MethodGet, url+string(role), nil)
	if err != nil {
		return IAMCredentials{}, errors.Wrap(err, "creating role request")
	}
	if useIMDSv2 {
		req.Header.Set(imdsTokenHeader, token)
	}

	resp, err = cl.Do(req)
	if err != nil {
		return IAMCredentials{}, errors.Wrap(err, "fetching role data")
	}

	defer func() {
		// Drain and close the body to let the Transport reuse the connection
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return IAMCredentials{}, errors.Errorf("fetching role data, got non 200 code: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return IAMCredentials{}, errors.Wrap(err, "reading role data")
	}

	var creds IAMCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return IAMCredentials{}, errors.Wrapf(err, "unmarshalling role data (%s)", body)
	}

	return creds, nil
}
