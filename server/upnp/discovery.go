package upnp

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sardaralii/music-assistant/log"
)

const (
	ssdpMulticastAddr  = "239.255.255.250:1900"
	ssdpSearchTarget   = "urn:schemas-upnp-org:device:ZonePlayer:1"
	ssdpSearchTimeout  = 3 * time.Second
	deviceFetchTimeout = 5 * time.Second
)

// discovery locates zone players via SSDP and keeps the speaker cache current
type discovery struct {
	cache  *speakerCache
	client *http.Client
}

func newDiscovery() *discovery {
	return &discovery{
		cache:  newSpeakerCache(),
		client: &http.Client{Timeout: deviceFetchTimeout},
	}
}

// scan sends an SSDP M-SEARCH and fetches the description of every responder
func (d *discovery) scan(ctx context.Context) ([]*Speaker, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("creating UDP listener: %w", err)
	}
	defer conn.Close()

	multicastAddr, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast address: %w", err)
	}
	if _, err = conn.WriteToUDP([]byte(buildMSearchRequest(ssdpSearchTarget)), multicastAddr); err != nil {
		return nil, fmt.Errorf("sending M-SEARCH: %w", err)
	}
	log.Debug(ctx, "Sent SSDP M-SEARCH for zone players")

	locations := map[string]bool{}
	_ = conn.SetReadDeadline(time.Now().Add(ssdpSearchTimeout))
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break
			}
			log.Warn(ctx, "Error reading SSDP response", err)
			break
		}
		if location := parseLocationHeader(string(buf[:n])); location != "" {
			locations[location] = true
		}
	}

	var speakers []*Speaker
	for location := range locations {
		speaker, err := d.fetchDescription(ctx, location)
		if err != nil {
			log.Warn(ctx, "Failed to fetch device description", "location", location, err)
			continue
		}
		speakers = append(speakers, speaker)
		d.cache.set(speaker)
	}
	log.Info(ctx, "Speaker discovery complete", "found", len(speakers))
	return speakers, nil
}

func buildMSearchRequest(searchTarget string) string {
	return fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"MAN: \"ssdp:discover\"\r\n"+
			"MX: 2\r\n"+
			"ST: %s\r\n"+
			"USER-AGENT: MusicAssistant/1.0 UPnP/1.0\r\n"+
			"\r\n",
		ssdpMulticastAddr, searchTarget)
}

// parseLocationHeader extracts the LOCATION header from an SSDP response
func parseLocationHeader(response string) string {
	scanner := bufio.NewScanner(strings.NewReader(response))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.ToUpper(line), "LOCATION:") {
			return strings.TrimSpace(line[9:])
		}
	}
	return ""
}

func (d *discovery) fetchDescription(ctx context.Context, location string) (*Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("parsing device description: %w", err)
	}

	ip, port := parseHostPort(location)
	name := desc.Device.RoomName
	if name == "" {
		name = desc.Device.FriendlyName
	}
	return &Speaker{
		IP:          ip,
		Port:        port,
		UUID:        strings.TrimPrefix(desc.Device.UDN, "uuid:"),
		RoomName:    name,
		ModelName:   desc.Device.ModelName,
		ModelNumber: desc.Device.ModelNumber,
		LastSeen:    time.Now(),
	}, nil
}

// parseHostPort extracts host and port from a description URL like
// http://192.168.1.10:1400/xml/device_description.xml
func parseHostPort(location string) (string, int) {
	location = strings.TrimPrefix(location, "http://")
	location = strings.TrimPrefix(location, "https://")
	if idx := strings.Index(location, "/"); idx != -1 {
		location = location[:idx]
	}
	host, portStr, err := net.SplitHostPort(location)
	if err != nil {
		return location, defaultDevicePort
	}
	port := defaultDevicePort
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// fetchZoneTopology asks one speaker for the full zone group layout and
// updates coordinator/membership info on all cached speakers.
func (d *discovery) fetchZoneTopology(ctx context.Context, speaker *Speaker) error {
	soapBody := `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>
    <u:GetZoneGroupState xmlns:u="urn:upnp-org:serviceId:ZoneGroupTopology">
    </u:GetZoneGroupState>
  </s:Body>
</s:Envelope>`

	url := fmt.Sprintf("http://%s:%d%s", speaker.IP, speaker.Port, zoneTopologyControlURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(soapBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPACTION", "urn:upnp-org:serviceId:ZoneGroupTopology#GetZoneGroupState")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zone topology request failed: %d - %s", resp.StatusCode, string(body))
	}

	stateXML := extractZoneGroupState(string(body))
	if stateXML == "" {
		return fmt.Errorf("no ZoneGroupState in response")
	}
	var zgs zoneGroupState
	if err := xml.Unmarshal([]byte(stateXML), &zgs); err != nil {
		return fmt.Errorf("parsing ZoneGroupState: %w", err)
	}

	for _, group := range zgs.ZoneGroups {
		memberUUIDs := make([]string, 0, len(group.Members))
		for _, member := range group.Members {
			memberUUIDs = append(memberUUIDs, member.UUID)
		}
		for _, member := range group.Members {
			cached, ok := d.cache.get(member.UUID)
			if !ok {
				continue
			}
			cached.ZoneGroupID = group.ID
			cached.Coordinator = member.UUID == group.Coordinator
			cached.GroupMembers = memberUUIDs
			if cached.RoomName == "" {
				cached.RoomName = member.ZoneName
			}
			d.cache.set(cached)
		}
	}
	log.Debug(ctx, "Zone topology updated", "groups", len(zgs.ZoneGroups))
	return nil
}

// extractZoneGroupState pulls the HTML-encoded ZoneGroupState document out of
// the SOAP response
func extractZoneGroupState(body string) string {
	content, ok := extractElement(body, "ZoneGroupState")
	if !ok {
		return ""
	}
	content = htmlDecode(content)
	// some firmwares double-encode the payload
	if !strings.Contains(content, "<ZoneGroup") {
		content = htmlDecode(content)
	}
	if strings.HasPrefix(strings.TrimSpace(content), "<ZoneGroupState>") {
		return content
	}
	return "<ZoneGroupState>" + content + "</ZoneGroupState>"
}

func htmlDecode(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&apos;", "'")
	return strings.ReplaceAll(s, "&amp;", "&")
}
