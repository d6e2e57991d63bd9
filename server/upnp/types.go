package upnp

import (
	"encoding/xml"
	"sync"
	"time"
)

// Speaker is a discovered UPnP/Sonos zone player
type Speaker struct {
	IP           string    `json:"ip"`
	Port         int       `json:"port"`
	UUID         string    `json:"uuid"`
	RoomName     string    `json:"roomName"`
	ModelName    string    `json:"modelName"`
	ModelNumber  string    `json:"modelNumber"`
	Coordinator  bool      `json:"coordinator"`
	ZoneGroupID  string    `json:"zoneGroupId"`
	GroupMembers []string  `json:"groupMembers,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
}

// speakerCache holds discovered speakers keyed by UUID
type speakerCache struct {
	mu       sync.RWMutex
	speakers map[string]*Speaker
}

func newSpeakerCache() *speakerCache {
	return &speakerCache{speakers: map[string]*Speaker{}}
}

func (c *speakerCache) set(s *Speaker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakers[s.UUID] = s
}

func (c *speakerCache) get(uuid string) (*Speaker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.speakers[uuid]
	return s, ok
}

func (c *speakerCache) all() []*Speaker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*Speaker, 0, len(c.speakers))
	for _, s := range c.speakers {
		result = append(result, s)
	}
	return result
}

// XML types for the UPnP device description document

type deviceDescription struct {
	XMLName xml.Name        `xml:"root"`
	Device  describedDevice `xml:"device"`
}

type describedDevice struct {
	DeviceType   string `xml:"deviceType"`
	FriendlyName string `xml:"friendlyName"`
	Manufacturer string `xml:"manufacturer"`
	ModelName    string `xml:"modelName"`
	ModelNumber  string `xml:"modelNumber"`
	UDN          string `xml:"UDN"` // uuid:RINCON_xxx
	RoomName     string `xml:"roomName"`
}

// XML types for ZoneGroupTopology

type zoneGroupState struct {
	XMLName    xml.Name    `xml:"ZoneGroupState"`
	ZoneGroups []zoneGroup `xml:"ZoneGroups>ZoneGroup"`
}

type zoneGroup struct {
	Coordinator string       `xml:"Coordinator,attr"`
	ID          string       `xml:"ID,attr"`
	Members     []zoneMember `xml:"ZoneGroupMember"`
}

type zoneMember struct {
	UUID     string `xml:"UUID,attr"`
	Location string `xml:"Location,attr"`
	ZoneName string `xml:"ZoneName,attr"`
}

// SOAP envelope and action types

type soapEnvelope struct {
	XMLName       xml.Name `xml:"s:Envelope"`
	XmlnsS        string   `xml:"xmlns:s,attr"`
	EncodingStyle string   `xml:"s:encodingStyle,attr"`
	Body          soapBody `xml:"s:Body"`
}

type soapBody struct {
	Content interface{} `xml:",any"`
}

type setAVTransportURIAction struct {
	XMLName            xml.Name `xml:"u:SetAVTransportURI"`
	XmlnsU             string   `xml:"xmlns:u,attr"`
	InstanceID         int      `xml:"InstanceID"`
	CurrentURI         string   `xml:"CurrentURI"`
	CurrentURIMetaData string   `xml:"CurrentURIMetaData"`
}

type setNextAVTransportURIAction struct {
	XMLName         xml.Name `xml:"u:SetNextAVTransportURI"`
	XmlnsU          string   `xml:"xmlns:u,attr"`
	InstanceID      int      `xml:"InstanceID"`
	NextURI         string   `xml:"NextURI"`
	NextURIMetaData string   `xml:"NextURIMetaData"`
}

type playAction struct {
	XMLName    xml.Name `xml:"u:Play"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
	Speed      string   `xml:"Speed"`
}

type pauseAction struct {
	XMLName    xml.Name `xml:"u:Pause"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
}

type stopAction struct {
	XMLName    xml.Name `xml:"u:Stop"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
}

type becomeStandaloneAction struct {
	XMLName    xml.Name `xml:"u:BecomeCoordinatorOfStandaloneGroup"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
}

type getTransportInfoAction struct {
	XMLName    xml.Name `xml:"u:GetTransportInfo"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
}

type getTransportInfoResponse struct {
	XMLName               xml.Name `xml:"GetTransportInfoResponse"`
	CurrentTransportState string   `xml:"CurrentTransportState"`
}

type getPositionInfoAction struct {
	XMLName    xml.Name `xml:"u:GetPositionInfo"`
	XmlnsU     string   `xml:"xmlns:u,attr"`
	InstanceID int      `xml:"InstanceID"`
}

type getPositionInfoResponse struct {
	XMLName       xml.Name `xml:"GetPositionInfoResponse"`
	Track         int      `xml:"Track"`
	TrackDuration string   `xml:"TrackDuration"`
	TrackURI      string   `xml:"TrackURI"`
	RelTime       string   `xml:"RelTime"`
}

type setVolumeAction struct {
	XMLName       xml.Name `xml:"u:SetVolume"`
	XmlnsU        string   `xml:"xmlns:u,attr"`
	InstanceID    int      `xml:"InstanceID"`
	Channel       string   `xml:"Channel"`
	DesiredVolume int      `xml:"DesiredVolume"`
}

type setMuteAction struct {
	XMLName     xml.Name `xml:"u:SetMute"`
	XmlnsU      string   `xml:"xmlns:u,attr"`
	InstanceID  int      `xml:"InstanceID"`
	Channel     string   `xml:"Channel"`
	DesiredMute int      `xml:"DesiredMute"` // 0 or 1
}

const (
	defaultDevicePort = 1400

	avTransportURN      = "urn:schemas-upnp-org:service:AVTransport:1"
	renderingControlURN = "urn:schemas-upnp-org:service:RenderingControl:1"

	avTransportControlURL      = "/MediaRenderer/AVTransport/Control"
	renderingControlControlURL = "/MediaRenderer/RenderingControl/Control"
	zoneTopologyControlURL     = "/ZoneGroupTopology/Control"

	transportStatePlaying       = "PLAYING"
	transportStateTransitioning = "TRANSITIONING"
	transportStatePaused        = "PAUSED_PLAYBACK"
	transportStateStopped       = "STOPPED"
)
