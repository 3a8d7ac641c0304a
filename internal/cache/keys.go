package cache

import "fmt"

// EntitlementKey возвращает ключ кеша снимка членства субъекта.
func EntitlementKey(subjectID string) string {
	return fmt.Sprintf("entitlement:%s", subjectID)
}
