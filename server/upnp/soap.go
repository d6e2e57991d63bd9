package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sardaralii/music-assistant/log"
)

// soapClient sends SOAP actions to a speaker's UPnP control endpoints
type soapClient struct {
	client *http.Client
}

func newSOAPClient() *soapClient {
	return &soapClient{client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *soapClient) send(ctx context.Context, speaker *Speaker, controlURL, urn, actionName string, action interface{}) ([]byte, error) {
	envelope := soapEnvelope{
		XmlnsS:        "http://schemas.xmlsoap.org/soap/envelope/",
		EncodingStyle: "http://schemas.xmlsoap.org/soap/encoding/",
		Body:          soapBody{Content: action},
	}
	body, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshalling SOAP envelope: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	url := fmt.Sprintf("http://%s:%d%s", speaker.IP, speaker.Port, controlURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", urn+"#"+actionName))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if upnpErr := parseSOAPFault(respBody); upnpErr != nil {
			log.Warn(ctx, "SOAP fault received", "speaker", speaker.RoomName, "action", actionName,
				"code", upnpErr.Code, "description", upnpErr.Description)
			return nil, upnpErr
		}
		return nil, fmt.Errorf("SOAP request failed: %d - %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *soapClient) transport(ctx context.Context, speaker *Speaker, actionName string, action interface{}) ([]byte, error) {
	return c.send(ctx, speaker, avTransportControlURL, avTransportURN, actionName, action)
}

func (c *soapClient) rendering(ctx context.Context, speaker *Speaker, actionName string, action interface{}) ([]byte, error) {
	return c.send(ctx, speaker, renderingControlControlURL, renderingControlURN, actionName, action)
}

// parseSOAPFault extracts a UPnP error code from a SOAP fault body
func parseSOAPFault(body []byte) *UPnPError {
	code, ok := extractElement(string(body), "errorCode")
	if !ok {
		return nil
	}
	codeNum, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return nil
	}
	description := upnpErrorDescription(codeNum)
	if deviceDesc, ok := extractElement(string(body), "errorDescription"); ok && deviceDesc != "" {
		description = fmt.Sprintf("%s (%s)", description, deviceDesc)
	}
	return &UPnPError{Code: codeNum, Description: description}
}

// extractElement returns the text content of the first <name>...</name> element
func extractElement(body, name string) (string, bool) {
	start := strings.Index(body, "<"+name+">")
	if start == -1 {
		return "", false
	}
	start += len(name) + 2
	end := strings.Index(body[start:], "</"+name+">")
	if end == -1 {
		return "", false
	}
	return body[start : start+end], true
}

// extractSOAPResponse unmarshals the response element inside the SOAP body
func extractSOAPResponse(body []byte, v interface{}) error {
	bodyStr := string(body)
	startBody := strings.Index(bodyStr, "<s:Body>")
	if startBody == -1 {
		startBody = strings.Index(bodyStr, "<Body>")
	}
	if startBody == -1 {
		return fmt.Errorf("no SOAP Body found")
	}
	endBody := strings.Index(bodyStr, "</s:Body>")
	if endBody == -1 {
		endBody = strings.Index(bodyStr, "</Body>")
	}
	if endBody == -1 {
		return fmt.Errorf("no SOAP Body end found")
	}
	startBody = strings.Index(bodyStr[startBody:], ">") + startBody + 1
	content := strings.TrimSpace(bodyStr[startBody:endBody])
	content = strings.ReplaceAll(content, "u:", "")
	return xml.Unmarshal([]byte(content), v)
}

// parseClockDuration parses H:MM:SS into seconds
func parseClockDuration(duration string) int {
	parts := strings.Split(duration, ":")
	if len(parts) != 3 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.Atoi(parts[2])
	return hours*3600 + minutes*60 + seconds
}

// buildDIDLMetadata creates the DIDL-Lite metadata document speakers need to
// accept a stream URI. The <res> protocolInfo carries the MIME type; without
// it Sonos rejects the URI with error 714.
func buildDIDLMetadata(id, title, streamURI, mimeType string) string {
	if mimeType == "" {
		mimeType = "audio/aac"
	}
	protocolInfo := fmt.Sprintf("http-get:*:%s:*", mimeType)
	return fmt.Sprintf(`<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">
<item id="%s" parentID="0" restricted="true">
<dc:title>%s</dc:title>
<res protocolInfo="%s">%s</res>
<upnp:class>object.item.audioItem.audioBroadcast</upnp:class>
</item>
</DIDL-Lite>`,
		html.EscapeString(id),
		html.EscapeString(title),
		protocolInfo,
		html.EscapeString(streamURI))
}
