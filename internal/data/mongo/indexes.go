package mongo

import "go.mongodb.org/mongo-driver/mongo"

// ProjectionIndexes maps each projection collection to the indexes its queries rely on
func ProjectionIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		LedgerCollectionName: LedgerIndexes(),
		AuditCollectionName:  AuditIndexes(),
	}
}
