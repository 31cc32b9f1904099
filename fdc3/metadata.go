package fdc3

// Version is the FDC3 standard version implemented by the agent.
const Version = "2.0"

// ChannelType distinguishes the three channel families.
type ChannelType string

const (
	ChannelTypeUser    ChannelType = "user"
	ChannelTypeApp     ChannelType = "app"
	ChannelTypePrivate ChannelType = "private"
)

// Valid reports whether t is one of the known channel types.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelTypeUser, ChannelTypeApp, ChannelTypePrivate:
		return true
	}
	return false
}

// AppIdentifier names an app and, optionally, one running instance of it.
type AppIdentifier struct {
	AppID      string `json:"appId"`
	InstanceID string `json:"instanceId,omitempty"`
}

// Icon is an app icon reference.
type Icon struct {
	Src  string `json:"src" yaml:"src"`
	Size string `json:"size,omitempty" yaml:"size,omitempty"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Image is an app screenshot reference.
type Image struct {
	Src   string `json:"src" yaml:"src"`
	Size  string `json:"size,omitempty" yaml:"size,omitempty"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// AppMetadata describes an app, or one of its instances when InstanceID is set.
type AppMetadata struct {
	AppID       string  `json:"appId"`
	InstanceID  string  `json:"instanceId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Version     string  `json:"version,omitempty"`
	Title       string  `json:"title,omitempty"`
	Tooltip     string  `json:"tooltip,omitempty"`
	Description string  `json:"description,omitempty"`
	Icons       []Icon  `json:"icons,omitempty"`
	Screenshots []Image `json:"screenshots,omitempty"`
	ResultType  string  `json:"resultType,omitempty"`
}

// Identifier returns the app identifier of the metadata.
func (m AppMetadata) Identifier() AppIdentifier {
	return AppIdentifier{AppID: m.AppID, InstanceID: m.InstanceID}
}

// IntentMetadata names an intent.
type IntentMetadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// AppIntent groups the apps able to handle one intent.
type AppIntent struct {
	Intent IntentMetadata `json:"intent"`
	Apps   []AppMetadata  `json:"apps"`
}

// DisplayMetadata is the user facing presentation of a channel.
type DisplayMetadata struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	Glyph string `json:"glyph,omitempty" yaml:"glyph,omitempty"`
}

// ChannelItem is one entry of the user channel set.
type ChannelItem struct {
	ID              string           `json:"id" yaml:"id"`
	Type            ChannelType      `json:"type" yaml:"type"`
	DisplayMetadata *DisplayMetadata `json:"displayMetadata,omitempty" yaml:"displayMetadata,omitempty"`
}

// ContextMetadata accompanies a delivered context.
type ContextMetadata struct {
	Source AppIdentifier `json:"source"`
}

// OptionalFeatures lists the optional FDC3 features the agent supports.
type OptionalFeatures struct {
	OriginatingAppMetadata    bool `json:"OriginatingAppMetadata"`
	UserChannelMembershipAPIs bool `json:"UserChannelMembershipAPIs"`
}

// ImplementationMetadata is returned by GetInfo.
type ImplementationMetadata struct {
	FDC3Version      string           `json:"fdc3Version"`
	Provider         string           `json:"provider"`
	ProviderVersion  string           `json:"providerVersion"`
	OptionalFeatures OptionalFeatures `json:"optionalFeatures"`
	AppMetadata      AppMetadata      `json:"appMetadata"`
}
