package haven

import "encoding/json"

// authResponse is returned by /Auth/Authenticate and /Auth/Refresh.
// A missing token field means the attempt was rejected.
type authResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       int64  `json:"id"`
}

// userInfoResponse is returned by /user/GetUserInfo. Upstream only ever
// reports a single default location per account.
type userInfoResponse struct {
	DefaultLocationID *int64 `json:"defaultLocationId"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
}

// zoneItem is one entry of /LightAndZones/OrderedList/{locationId}.
// Items with IsZone=false are non-light rows (headers, scenes) and are skipped.
type zoneItem struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IsOn         bool   `json:"isOn"`
	BrightnessID *int   `json:"lightBrightnessId"`
	ColorID      *int   `json:"colorId"`
	IsZone       bool   `json:"isZone"`
	Type         string `json:"type"`
	LocationName string `json:"locationName"`
}

// groupItem is one entry of /Group/AllGroupsByLocation/{locationId}.
// Note the brightness field name differs from the zone list.
type groupItem struct {
	GroupID      int64  `json:"groupId"`
	GroupName    string `json:"groupName"`
	IsOn         bool   `json:"isOn"`
	BrightnessID *int   `json:"brightnessId"`
	ColorID      *int   `json:"colorId"`
}

// listEnvelope accepts both response shapes the list endpoints produce:
// a bare JSON array, or an object wrapping the array under "data".
type listEnvelope[T any] struct {
	Items []T
}

func (l *listEnvelope[T]) UnmarshalJSON(data []byte) error {
	var bare []T
	if err := json.Unmarshal(data, &bare); err == nil {
		l.Items = bare
		return nil
	}
	var wrapped struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	l.Items = wrapped.Data
	return nil
}

// commandPayload is the body for every /Commands/* endpoint. Brightness
// and ColorID are only set for their respective commands.
type commandPayload struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	Brightness *int   `json:"brightness,omitempty"`
	ColorID    *int   `json:"colorId,omitempty"`
}
