package models

import (
	"strconv"
	"strings"
	"time"
)

// DeviceType identifies the client platform that registered a device.
type DeviceType int

const (
	DeviceTypeAndroid          DeviceType = 0
	DeviceTypeIOS              DeviceType = 1
	DeviceTypeChromeExtension  DeviceType = 2
	DeviceTypeFirefoxExtension DeviceType = 3
	DeviceTypeWindowsDesktop   DeviceType = 6
	DeviceTypeMacOsDesktop     DeviceType = 7
	DeviceTypeLinuxDesktop     DeviceType = 8
	DeviceTypeChromeBrowser    DeviceType = 9
	DeviceTypeFirefoxBrowser   DeviceType = 10
	DeviceTypeSafariBrowser    DeviceType = 12
	DeviceTypeUnknownBrowser   DeviceType = 14
	DeviceTypeSDK              DeviceType = 21
	DeviceTypeCLI              DeviceType = 23
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeAndroid:          "Android",
	DeviceTypeIOS:              "iOS",
	DeviceTypeChromeExtension:  "Chrome Extension",
	DeviceTypeFirefoxExtension: "Firefox Extension",
	DeviceTypeWindowsDesktop:   "Windows Desktop",
	DeviceTypeMacOsDesktop:     "macOS Desktop",
	DeviceTypeLinuxDesktop:     "Linux Desktop",
	DeviceTypeChromeBrowser:    "Chrome",
	DeviceTypeFirefoxBrowser:   "Firefox",
	DeviceTypeSafariBrowser:    "Safari",
	DeviceTypeUnknownBrowser:   "Unknown Browser",
	DeviceTypeCLI:              "CLI",
	DeviceTypeSDK:              "SDK",
}

// DisplayName returns the human-readable platform name for emails.
func (t DeviceType) DisplayName() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return "Unknown Device"
}

// ParseDeviceType parses the numeric wire form of a device type.
func ParseDeviceType(s string) (DeviceType, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	t := DeviceType(n)
	if _, ok := deviceTypeNames[t]; !ok {
		return 0, false
	}
	return t, true
}

// Device is a client install that has authenticated as a user. The
// (UserID, Identifier) pair is unique; Identifier is generated client-side
// and stable per install.
type Device struct {
	ID         string
	UserID     string
	Identifier string
	Name       string
	Type       DeviceType
	PushToken  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeviceDescriptor is the raw device information submitted with a token
// request, prior to validation.
type DeviceDescriptor struct {
	Identifier string
	Type       string
	Name       string
	PushToken  string
}

// Resolve validates the descriptor and converts it into an unsaved Device.
// Returns false when any required field is blank or the type is unparseable.
func (d DeviceDescriptor) Resolve() (*Device, bool) {
	if strings.TrimSpace(d.Identifier) == "" ||
		strings.TrimSpace(d.Type) == "" ||
		strings.TrimSpace(d.Name) == "" {
		return nil, false
	}

	deviceType, ok := ParseDeviceType(d.Type)
	if !ok {
		return nil, false
	}

	device := &Device{
		Identifier: d.Identifier,
		Name:       d.Name,
		Type:       deviceType,
	}
	if strings.TrimSpace(d.PushToken) != "" {
		token := d.PushToken
		device.PushToken = &token
	}
	return device, true
}
