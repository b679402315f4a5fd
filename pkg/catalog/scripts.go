package catalog

import "github.com/redis/go-redis/v9"

// KEYS: view hash, draft index, promoted index
// ARGV: timestamp, threshold, view name
// Returns {usage_count, promoted} or {-1, 0} when the view is missing.
var incrementUsageScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, 0}
end
local count = redis.call('HINCRBY', KEYS[1], 'usage_count', 1)
redis.call('HSET', KEYS[1], 'last_used', ARGV[1])
local promoted = 0
if count >= tonumber(ARGV[2]) and redis.call('HGET', KEYS[1], 'status') == 'DRAFT' then
  redis.call('HSET', KEYS[1], 'status', 'PROMOTED', 'promoted_at', ARGV[1])
  redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[3])
  promoted = 1
end
return {count, promoted}
`)

// KEYS: view hash, then one status index per lifecycle state
// ARGV: target status, required current status or '', timestamp field or '',
// timestamp, view name, then the state named by each index key in order
// Returns -1 when the view is missing, 0 when unchanged and 1 on transition.
var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return -1
end
if ARGV[2] ~= '' and current ~= ARGV[2] then
  return 0
end
if current == ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
end
for i = 6, #ARGV do
  if ARGV[i] == current then
    redis.call('SREM', KEYS[i - 4], ARGV[5])
  elseif ARGV[i] == ARGV[1] then
    redis.call('SADD', KEYS[i - 4], ARGV[5])
  end
end
return 1
`)
