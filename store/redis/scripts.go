package redis

import goredis "github.com/redis/go-redis/v9"

// Scores and lease deadlines are unix microseconds, matching the precision
// of entity timestamps.

// createDeliveryScript inserts a delivery if its webhook still exists.
// KEYS: webhook, delivery, z:del:wh, pending, retrying, claim token, claim
// until, status, counts.
// ARGV: id, json, created score, status, next retry score, token, until.
var createDeliveryScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
if ARGV[4] == 'pending' then
  redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
elseif ARGV[4] == 'retrying' then
  redis.call('ZADD', KEYS[5], ARGV[5], ARGV[1])
end
if ARGV[6] ~= '' then
  redis.call('HSET', KEYS[6], ARGV[1], ARGV[6])
  redis.call('HSET', KEYS[7], ARGV[1], ARGV[7])
end
redis.call('HSET', KEYS[8], ARGV[1], ARGV[4])
redis.call('HINCRBY', KEYS[9], ARGV[4], 1)
return 1
`)

// claimDueScript leases due retries, then stale pending deliveries, skipping
// any with an unexpired lease.
// KEYS: retrying, pending, claim token, claim until.
// ARGV: now, stale before, limit, token, until.
var claimDueScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[3])
local out = {}
local function claim(ids)
  for _, id in ipairs(ids) do
    if #out >= limit then return end
    local u = redis.call('HGET', KEYS[4], id)
    if (not u) or tonumber(u) <= now then
      redis.call('HSET', KEYS[3], id, ARGV[4])
      redis.call('HSET', KEYS[4], id, ARGV[5])
      out[#out + 1] = id
    end
  end
end
claim(redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1]))
claim(redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2]))
return out
`)

// completeAttemptScript stores an attempt result if token holds the claim.
// KEYS: delivery, claim token, claim until, pending, retrying, status, counts.
// ARGV: id, token, json, status, next retry score.
var completeAttemptScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then return 0 end
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('SET', KEYS[1], ARGV[3])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if ARGV[4] ~= 'pending' then redis.call('ZREM', KEYS[4], ARGV[1]) end
if ARGV[4] == 'retrying' then
  redis.call('ZADD', KEYS[5], ARGV[5], ARGV[1])
else
  redis.call('ZREM', KEYS[5], ARGV[1])
end
local old = redis.call('HGET', KEYS[6], ARGV[1])
if old then redis.call('HINCRBY', KEYS[7], old, -1) end
redis.call('HSET', KEYS[6], ARGV[1], ARGV[4])
redis.call('HINCRBY', KEYS[7], ARGV[4], 1)
return 1
`)

// releaseClaimScript clears a lease held by token.
// KEYS: claim token, claim until. ARGV: id, token.
var releaseClaimScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then return 0 end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// deleteWebhookScript removes a webhook and every delivery it owns.
// KEYS: webhook, z:wh:all, z:del:wh, retrying, pending, claim token, claim
// until, status, counts.
// ARGV: webhook id, delivery prefix, event set keys...
var deleteWebhookScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
for _, id in ipairs(redis.call('ZRANGE', KEYS[3], 0, -1)) do
  redis.call('DEL', ARGV[2] .. id)
  redis.call('ZREM', KEYS[4], id)
  redis.call('ZREM', KEYS[5], id)
  redis.call('HDEL', KEYS[6], id)
  redis.call('HDEL', KEYS[7], id)
  local st = redis.call('HGET', KEYS[8], id)
  if st then
    redis.call('HINCRBY', KEYS[9], st, -1)
    redis.call('HDEL', KEYS[8], id)
  end
end
redis.call('DEL', KEYS[3])
for i = 3, #ARGV do redis.call('SREM', ARGV[i], ARGV[1]) end
return 1
`)
