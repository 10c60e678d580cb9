package xdgportal

import (
	"context"
	"errors"
	"fmt"

	"go2tv.app/screenrec/internal/apis"
	"go2tv.app/screenrec/internal/request"
)

const (
	screenshotInterface = apis.CallBaseName + ".Screenshot"
	screenshotName      = screenshotInterface + ".Screenshot"
)

var (
	ErrCancelled = errors.New("screenshot request was cancelled")
	ErrNoURI     = errors.New("screenshot response missing uri")
)

type ScreenshotOptions struct {
	// Interactive lets the user pick a region first. Recording keeps it off.
	Interactive bool
	Modal       bool
}

// Client issues Screenshot portal requests over one session bus connection.
type Client struct {
	portal *apis.Portal
}

func New() (*Client, error) {
	portal, err := apis.Connect()
	if err != nil {
		return nil, err
	}
	return &Client{portal: portal}, nil
}

func (c *Client) Version() (uint32, error) {
	value, err := c.portal.Property(screenshotInterface, "version")
	if err != nil {
		return 0, err
	}
	v, ok := value.(uint32)
	if !ok {
		return 0, fmt.Errorf("property version returned unexpected type %T", value)
	}
	return v, nil
}

// Screenshot asks the portal for a full-desktop screenshot and returns the
// file URI of the written image. The caller owns (and should remove) the file.
func (c *Client) Screenshot(ctx context.Context, options *ScreenshotOptions) (string, error) {
	token := request.NewToken()
	status, results, err := request.Do(ctx, c.portal, screenshotName, token, "", requestOptions(token, options))
	if err != nil {
		return "", err
	}
	if status != request.Success {
		return "", fmt.Errorf("%w: status=%d", ErrCancelled, status)
	}

	uri, ok := stringResult(results, "uri")
	if !ok || uri == "" {
		return "", ErrNoURI
	}
	return uri, nil
}
