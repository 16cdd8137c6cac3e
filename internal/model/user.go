package model

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidProfile = errors.New("invalid user profile")

// Profile — профиль пользователя из ответа login/signup. Хранится как JSON под ключом профиля.
// email обязателен; name при отсутствии заменяется на "User", как это делает бэкенд.
// Остальные поля бэкенда лежат в Extra и записываются обратно без изменений.
type Profile struct {
	ID    string
	Name  string
	Email string
	Extra map[string]json.RawMessage

	// числовой id бэкенда пишется обратно числом
	idNumeric bool
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = Profile{}
	for k, v := range fields {
		switch k {
		case "name":
			_ = json.Unmarshal(v, &p.Name)
		case "email":
			_ = json.Unmarshal(v, &p.Email)
		case "id":
			var n json.Number
			switch {
			case json.Unmarshal(v, &p.ID) == nil:
			case len(v) > 0 && v[0] != '"' && json.Unmarshal(v, &n) == nil:
				p.ID, p.idNumeric = n.String(), true
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[k] = v
		}
	}
	return nil
}

func (p Profile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["name"] = p.Name
	out["email"] = p.Email
	if p.ID != "" {
		if p.idNumeric {
			out["id"] = json.RawMessage(p.ID)
		} else {
			out["id"] = p.ID
		}
	}
	return json.Marshal(out)
}

// ParseProfile разбирает сохранённый профиль. Ошибка схемы — ErrInvalidProfile.
func ParseProfile(raw string) (*Profile, error) {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return nil, ErrInvalidProfile
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errors.Join(ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) Validate() error {
	if p == nil || strings.TrimSpace(p.Email) == "" {
		return ErrInvalidProfile
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "User"
	}
	return nil
}

// Encode — JSON для записи в хранилище.
func (p *Profile) Encode() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
