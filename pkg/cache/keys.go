package cache

import "fmt"

func AccountKey(accountID string) string {
	return fmt.Sprintf("account:%s", accountID)
}

func AccountTransactionsPattern(accountID string) string {
	return fmt.Sprintf("account:%s:transactions:*", accountID)
}

func AccountTransactionsKey(accountID, variant string) string {
	return fmt.Sprintf("account:%s:transactions:%s", accountID, variant)
}
