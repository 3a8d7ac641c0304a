// Package referrals реализует клиент справочника водителей — внешнего
// коллаборатора, отдающего роль субъекта и суммарное число рефералов.
// Сам подсчёт рефералов и проверка ролей вне зоны ответственности движка.
package referrals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Client HTTP-клиент справочника.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент справочника водителей.
func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetDriverProfile возвращает профиль субъекта: роль и число рефералов.
// ReferralTotal у справочника монотонно не убывает.
func (c *Client) GetDriverProfile(ctx context.Context, subjectID string) (*DriverProfile, error) {
	const op = "referrals.GetDriverProfile"

	url := fmt.Sprintf("%s/api/v1/drivers/%s/profile", c.apiURL, subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		// Неизвестный справочнику субъект не является водителем.
		return &DriverProfile{SubjectID: subjectID, IsDriver: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w", op, errors.New("unexpected status: "+resp.Status))
	}

	var profile DriverProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &profile, nil
}
