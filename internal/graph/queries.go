package graph

// Cypher statements for the projection. Everything merges on uuid so the
// projection is idempotent per run.

const upsertEntityQuery = `
MERGE (e:Entity {uuid: $uuid})
SET e.entity_type = $entity_type,
    e.org_id = $org_id,
    e.name = $name,
    e.description = $description,
    e.source_count = $source_count,
    e.confidence = $confidence,
    e.contradiction = $contradiction,
    e.audit_id = $audit_id`

const upsertRelationshipQuery = `
MATCH (a:Entity {uuid: $from_uuid}), (b:Entity {uuid: $to_uuid})
MERGE (a)-[r:RELATES_TO {uuid: $uuid}]->(b)
SET r.kind = $kind,
    r.org_id = $org_id,
    r.confidence = $confidence,
    r.rule = $rule,
    r.audit_id = $audit_id`

const upsertPatternQuery = `
MERGE (p:Pattern {uuid: $uuid})
SET p.kind = $kind,
    p.org_id = $org_id,
    p.name = $name,
    p.strength = $strength,
    p.high_priority = $high_priority,
    p.audit_id = $audit_id`

const linkPatternQuery = `
MATCH (p:Pattern {uuid: $pattern_uuid}), (e:Entity {uuid: $entity_uuid})
MERGE (p)-[:SUPPORTED_BY]->(e)`

const deleteRunQuery = `
MATCH (n {audit_id: $audit_id})
DETACH DELETE n`
